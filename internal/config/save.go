package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Save writes cfg to path as YAML with 0600 permissions (the file holds the
// backend token and Tally credentials).
func Save(path string, cfg *Config) error {
	// Keys mirror the mapstructure tags so Load reads the file back.
	doc := map[string]any{
		"tally_url":       cfg.TallyURL,
		"backend_url":     cfg.BackendURL,
		"token":           cfg.Token,
		"company_id":      cfg.CompanyID,
		"company_name":    cfg.CompanyName,
		"groups":          cfg.Groups,
		"geocode_enabled": cfg.GeocodeEnabled,
		"sync_interval":   cfg.SyncInterval.String(),
		"poll_interval":   cfg.PollInterval.String(),
		"batch_size":      cfg.BatchSize,
		"poll_limit":      cfg.PollLimit,
		"data_dir":        cfg.DataDir,
		"dashboard_port":  cfg.DashboardPort,
	}
	if cfg.TallyUsername != "" {
		doc["tally_username"] = cfg.TallyUsername
		doc["tally_password"] = cfg.TallyPassword
	}
	if cfg.GeocodeAPIKey != "" {
		doc["geocode_api_key"] = cfg.GeocodeAPIKey
	}
	if cfg.LogFile != "" {
		doc["log_file"] = cfg.LogFile
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
