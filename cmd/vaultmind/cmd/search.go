package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahart-dev/vaultmind/internal/app"
	"github.com/ahart-dev/vaultmind/internal/config"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/search"
)

// newSearchCmd creates the search command, a one-shot query against a
// vault's index, printed as JSON.
func newSearchCmd() *cobra.Command {
	var vaultFlag, modeFlag, personFlag, categoryFlag, dateFromFlag, dateToFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a one-shot search against a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
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

			mode := search.Mode(modeFlag)
			if mode == "" {
				mode = search.ModeHybrid
			}

			results, err := application.Engine.Search(c.Context(), search.Request{
				Query:    args[0],
				Vault:    model.Vault(vaultFlag),
				Mode:     mode,
				Category: categoryFlag,
				Person:   personFlag,
				DateFrom: dateFromFlag,
				DateTo:   dateToFlag,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&vaultFlag, "vault", string(model.VaultWork), "vault to search: work or personal")
	cmd.Flags().StringVar(&modeFlag, "mode", "hybrid", "search mode: vector, bm25, hybrid, or query")
	cmd.Flags().StringVar(&personFlag, "person", "", "filter by a person mentioned in the document")
	cmd.Flags().StringVar(&categoryFlag, "category", "", "filter by document category")
	cmd.Flags().StringVar(&dateFromFlag, "date-from", "", "earliest document date, YYYY-MM-DD")
	cmd.Flags().StringVar(&dateToFlag, "date-to", "", "latest document date, YYYY-MM-DD")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (0 uses the configured default)")

	return cmd
}
