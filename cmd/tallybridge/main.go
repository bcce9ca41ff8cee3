// Command tallybridge bridges a local Tally instance with the cloud
// backend: delta uploads of ledger records and replay of pending edits.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rajlabs/tallybridge/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tallybridge",
	Short: "Sync Tally ledgers with the cloud backend",
	Long: `tallybridge keeps a cloud backend in step with a local Tally instance.

It fingerprints every debtor/creditor ledger, uploads only records that are
new or changed since the last successful run, and applies address edits made
in the backend back into Tally.

Typical workflow:
  tallybridge setup          # pick company, groups, enter credentials
  tallybridge sync           # one manual pass
  tallybridge run            # background scheduler + update poller
  tallybridge status         # last run summary`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ./config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)
}

// loadConfig reads the resolved configuration for a command.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(cfgFile, log.Default())
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// newLogger builds a component logger. When logFile is set, output goes
// through a rotating file; otherwise stderr.
func newLogger(prefix, logFile string) *log.Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	return log.New(out, "["+prefix+"] ", log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
