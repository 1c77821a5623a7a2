package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahart-dev/vaultmind/internal/app"
	"github.com/ahart-dev/vaultmind/internal/config"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/ui"
)

// newIndexCmd creates the index command, a synchronous foreground run of
// the orchestrator with a terminal progress view.
func newIndexCmd() *cobra.Command {
	var full bool
	var vaultFlag string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a vault",
		Long:  `index runs a full or incremental ingestion pass over the work or personal vault, reporting progress to the terminal.`,
		RunE: func(c *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(cfgDir)
			if err != nil {
				root = cfgDir
			}
			cfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer application.Close()

			vault := model.Vault(vaultFlag)
			if vault != model.VaultWork && vault != model.VaultPersonal {
				return fmt.Errorf("--vault must be %q or %q", model.VaultWork, model.VaultPersonal)
			}

			renderer := ui.NewProgressRenderer(os.Stdout, vault)
			application.Orchestrator.ResetCancel()
			result, err := application.Orchestrator.Run(c.Context(), vault, full, func(p model.Progress) {
				renderer.Feed(p)
			})
			if err != nil {
				renderer.Done("failed: " + err.Error())
				return err
			}
			renderer.Done(fmt.Sprintf("indexed %d documents", result.IndexedCount))
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "force a full reindex instead of incremental")
	cmd.Flags().StringVar(&vaultFlag, "vault", string(model.VaultWork), "vault to index: work or personal")

	return cmd
}
