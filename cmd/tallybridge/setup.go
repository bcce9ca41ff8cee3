package main

import (
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rajlabs/tallybridge/internal/config"
	"github.com/rajlabs/tallybridge/internal/tally"
	"github.com/rajlabs/tallybridge/internal/ui"
)

var setupCmd = &cobra.Command{
	Use:     "setup",
	GroupID: "setup",
	Short:   "Interactive configuration",
	Long: `Configure tallybridge interactively.

Connects to the local Tally instance, lets you pick the company to sync and
the parent groups to include, collects backend credentials, and writes
config.yaml. Tally must be running with its XML server enabled.

Example usage:
  tallybridge setup
  tallybridge setup --config /etc/tallybridge/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		logger := log.New(os.Stderr, "[tally] ", log.LstdFlags)
		client := tally.NewClient(cfg.TallyURL, logger)

		if err := client.TestConnection(ctx); err != nil {
			return fmt.Errorf("cannot reach Tally at %s (is the XML server on?): %w",
				cfg.TallyURL, err)
		}

		companies, err := client.Companies(ctx)
		if err != nil {
			return err
		}
		if len(companies) == 0 {
			return fmt.Errorf("no companies are open in Tally")
		}

		// Company + backend details.
		if err := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Company to sync").
					Options(huh.NewOptions(companies...)...).
					Value(&cfg.CompanyName),
				huh.NewInput().
					Title("Backend URL").
					Placeholder("https://backend.example.com").
					Value(&cfg.BackendURL),
				huh.NewInput().
					Title("Middleware token").
					EchoMode(huh.EchoModePassword).
					Value(&cfg.Token),
				huh.NewInput().
					Title("Company ID (from the backend)").
					Value(&cfg.CompanyID),
			),
		).Run(); err != nil {
			return fmt.Errorf("setup aborted: %w", err)
		}

		// Tally credentials, only when the company has security enabled.
		secured, err := client.CompanySecured(ctx, cfg.CompanyName)
		if err != nil {
			fmt.Printf("%s Could not determine if company is secured: %v\n",
				ui.RenderWarn("⚠"), err)
		}
		if secured {
			if err := promptCredentials(cfg); err != nil {
				return err
			}
		}

		// Group selection from the live group list.
		groups, err := client.Groups(ctx, cfg.CompanyName,
			cfg.TallyUsername, cfg.TallyPassword)
		if err != nil {
			fmt.Printf("%s Could not list groups, syncing all: %v\n",
				ui.RenderWarn("⚠"), err)
		} else if len(groups) > 0 {
			if err := huh.NewForm(
				huh.NewGroup(
					huh.NewMultiSelect[string]().
						Title("Parent groups to sync (none = all)").
						Options(huh.NewOptions(groups...)...).
						Value(&cfg.Groups),
				),
			).Run(); err != nil {
				return fmt.Errorf("setup aborted: %w", err)
			}
		}

		// Geocoding.
		if err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Geocode addresses during sync?").
					Value(&cfg.GeocodeEnabled),
			),
		).Run(); err != nil {
			return fmt.Errorf("setup aborted: %w", err)
		}
		if cfg.GeocodeEnabled && cfg.GeocodeAPIKey == "" {
			if err := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Google Maps API key").
						EchoMode(huh.EchoModePassword).
						Value(&cfg.GeocodeAPIKey),
				),
			).Run(); err != nil {
				return fmt.Errorf("setup aborted: %w", err)
			}
		}

		path := cfgFile
		if path == "" {
			path = "config.yaml"
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}

		fmt.Printf("\n%s Configuration written to %s\n", ui.RenderPass("✓"), path)
		fmt.Printf("  Company: %s\n", cfg.CompanyName)
		if len(cfg.Groups) > 0 {
			fmt.Printf("  Groups:  %d selected\n", len(cfg.Groups))
		} else {
			fmt.Printf("  Groups:  all\n")
		}
		fmt.Printf("\nRun '%s' to start syncing.\n", ui.RenderAccent("tallybridge run"))
		return nil
	},
}

// promptCredentials collects Tally username/password. Falls back to a raw
// terminal read when the interactive form can't run (no TTY).
func promptCredentials(cfg *config.Config) error {
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tally username").
				Value(&cfg.TallyUsername),
			huh.NewInput().
				Title("Tally password").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.TallyPassword),
		),
	).Run()
	if err == nil {
		return nil
	}

	fmt.Print("Tally username: ")
	if _, err := fmt.Scanln(&cfg.TallyUsername); err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	fmt.Print("Tally password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.TallyPassword = string(raw)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
