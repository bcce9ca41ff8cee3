package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajlabs/tallybridge/internal/export"
	"github.com/rajlabs/tallybridge/internal/geocode"
	"github.com/rajlabs/tallybridge/internal/record"
	"github.com/rajlabs/tallybridge/internal/tally"
	"github.com/rajlabs/tallybridge/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "sync",
	Short:   "Export fetched ledgers to CSV",
	Long: `Fetch the configured company's debtor/creditor ledgers from Tally and
write them to a CSV file. Does not touch the backend or the snapshot.

Example usage:
  tallybridge export                       # writes ledgers.csv
  tallybridge export /tmp/debtors.csv
  tallybridge export --geocode out.csv    # resolve coordinates too`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CompanyName == "" {
			return fmt.Errorf("company_name is not configured (run setup)")
		}

		path := "ledgers.csv"
		if len(args) == 1 {
			path = args[0]
		}
		doGeocode, _ := cmd.Flags().GetBool("geocode")

		client := tally.NewClient(cfg.TallyURL,
			log.New(os.Stderr, "[tally] ", log.LstdFlags))

		ctx := cmd.Context()
		records, err := client.FetchLedgers(ctx, cfg.CompanyName,
			cfg.TallyUsername, cfg.TallyPassword)
		if err != nil {
			return err
		}
		records = record.FilterByParents(records, cfg.Groups)

		if doGeocode {
			if cfg.GeocodeAPIKey == "" {
				return fmt.Errorf("--geocode requires geocode_api_key in config")
			}
			geocoder := geocode.New(cfg.GeocodeAPIKey, 0,
				log.New(os.Stderr, "[geocode] ", log.LstdFlags))
			records = geocoder.Enrich(ctx, records)
		}

		if err := export.WriteFile(path, records); err != nil {
			return err
		}

		fmt.Printf("%s Exported %d records to %s\n",
			ui.RenderPass("✓"), len(records), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().Bool("geocode", false, "Geocode addresses before export")
	rootCmd.AddCommand(exportCmd)
}
