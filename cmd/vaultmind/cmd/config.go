package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahart-dev/vaultmind/internal/config"
)

// newConfigCmd creates the config command, which prints the fully-resolved
// layered configuration for the current project directory.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(c *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(cfgDir)
			if err != nil {
				root = cfgDir
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
	return cmd
}
