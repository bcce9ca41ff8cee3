package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajlabs/tallybridge/internal/backend"
	"github.com/rajlabs/tallybridge/internal/tally"
	"github.com/rajlabs/tallybridge/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Fetch ledgers from Tally, detect changes against the last successful
upload, and push the delta to the backend.

The snapshot is only updated when the whole upload succeeds, so a failed
pass retries the same delta next time.

Example usage:
  tallybridge sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		eng, cleanup, err := buildEngine(cfg, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		run, err := eng.scheduler.RunOnce(cmd.Context())
		if err != nil {
			switch {
			case errors.Is(err, tally.ErrAuth):
				return fmt.Errorf("tally rejected the configured credentials: %w", err)
			case errors.Is(err, backend.ErrUnauthorized):
				return fmt.Errorf("backend rejected the middleware token: %w", err)
			}
			return err
		}

		if run.New == 0 && run.Changed == 0 {
			fmt.Printf("%s No changes (%d records unchanged)\n",
				ui.RenderPass("✓"), run.Unchanged)
			return nil
		}
		fmt.Printf("%s Uploaded %d records (%d new, %d changed, %d unchanged",
			ui.RenderPass("✓"), run.Uploaded, run.New, run.Changed, run.Unchanged)
		if run.Failed > 0 {
			fmt.Printf(", %s", ui.RenderWarn(fmt.Sprintf("%d failed", run.Failed)))
		}
		fmt.Println(")")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
