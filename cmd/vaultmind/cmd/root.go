// Package cmd provides the CLI commands for vaultmind.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahart-dev/vaultmind/internal/logging"
)

var (
	debugMode bool
	cfgDir    string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the vaultmind CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vaultmind",
		Short: "Personal knowledge retrieval engine over markdown and PDF vaults",
		Long: `vaultmind indexes your work and personal markdown/PDF vaults into a
hybrid vector+keyword index, and retrieves from them with person- and
date-aware hybrid search, rank fusion, and optional LLM reranking.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgDir, "dir", ".", "project directory to resolve vault config from")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to the default log file")

	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newServeCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
