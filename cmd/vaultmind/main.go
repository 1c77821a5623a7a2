// Package main provides the vaultmind CLI entry point.
package main

import (
	"os"

	"github.com/ahart-dev/vaultmind/cmd/vaultmind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
