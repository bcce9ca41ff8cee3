package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rajlabs/tallybridge/internal/snapshot"
	"github.com/rajlabs/tallybridge/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show the last sync pass",
	Long: `Display the outcome of the most recent sync pass from the local
snapshot store, without contacting Tally or the backend.

Example usage:
  tallybridge status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CompanyID == "" {
			return fmt.Errorf("company_id is not configured (run setup)")
		}

		path := snapshot.PathFor(cfg.DataDir, cfg.CompanyID)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Printf("\n%s Never synced\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'tallybridge sync' to start\n\n")
			return nil
		}

		store, err := snapshot.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		run, err := store.LastRun(ctx)
		if err != nil {
			return err
		}
		count, err := store.RunCount(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderBold("Company:"), cfg.CompanyName)
		if run == nil {
			fmt.Printf("%s No passes recorded yet\n\n", ui.RenderWarn("⚠"))
			return nil
		}

		age := time.Since(run.FinishedAt).Round(time.Second)
		if run.Error != "" {
			fmt.Printf("%s Last pass failed %s ago\n", ui.RenderFail("✗"), age)
			fmt.Printf("   %s\n", ui.RenderDim(run.Error))
		} else if run.New == 0 && run.Changed == 0 {
			fmt.Printf("%s Last pass %s ago: no changes (%d unchanged)\n",
				ui.RenderPass("✓"), age, run.Unchanged)
		} else {
			fmt.Printf("%s Last pass %s ago: uploaded %d (%d new, %d changed)\n",
				ui.RenderPass("✓"), age, run.Uploaded, run.New, run.Changed)
			if run.Failed > 0 {
				fmt.Printf("   %s\n", ui.RenderWarn(
					fmt.Sprintf("%d records failed on the backend", run.Failed)))
			}
		}
		fmt.Printf("   %s\n\n", ui.RenderDim(
			fmt.Sprintf("%d passes recorded · %s", count, path)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
