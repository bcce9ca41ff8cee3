package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajlabs/tallybridge/internal/tally"
	"github.com/rajlabs/tallybridge/internal/ui"
)

var companiesCmd = &cobra.Command{
	Use:     "companies",
	GroupID: "setup",
	Short:   "List companies open in Tally",
	Long: `List the companies currently open in the local Tally instance.

Tally must be running with its XML server enabled (default port 9000).

Example usage:
  tallybridge companies
  tallybridge companies --tally-url http://192.168.1.5:9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if url, _ := cmd.Flags().GetString("tally-url"); url != "" {
			cfg.TallyURL = url
		}

		client := tally.NewClient(cfg.TallyURL,
			log.New(os.Stderr, "[tally] ", log.LstdFlags))

		ctx := cmd.Context()
		if err := client.TestConnection(ctx); err != nil {
			return fmt.Errorf("cannot reach Tally at %s: %w", cfg.TallyURL, err)
		}

		companies, err := client.Companies(ctx)
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			fmt.Printf("%s No companies are open in Tally\n", ui.RenderWarn("⚠"))
			return nil
		}

		fmt.Printf("%s %d companies open:\n", ui.RenderPass("✓"), len(companies))
		for _, name := range companies {
			marker := " "
			if name == cfg.CompanyName {
				marker = ui.RenderAccent("*")
			}
			fmt.Printf(" %s %s\n", marker, name)
		}
		return nil
	},
}

func init() {
	companiesCmd.Flags().String("tally-url", "", "Tally XML server URL (overrides config)")
	rootCmd.AddCommand(companiesCmd)
}
