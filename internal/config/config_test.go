package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Missing file: defaults apply, no error.
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), nil)

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed with missing file: %v", err)
	}
	if cfg.TallyURL != DefaultTallyURL {
		t.Errorf("TallyURL = %q", cfg.TallyURL)
	}
	if cfg.SyncInterval != DefaultSyncInterval || cfg.PollInterval != DefaultPollInterval {
		t.Errorf("intervals = %s / %s, want defaults", cfg.SyncInterval, cfg.PollInterval)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want default", cfg.BatchSize)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
tally_url: http://10.0.0.5:9000
backend_url: https://api.example.com
token: secret-token
company_id: comp-1
company_name: Raj Traders
groups:
  - Sundry Debtors
  - Sundry Creditors
geocode_enabled: true
sync_interval: 10m
poll_interval: 90s
batch_size: 50
`)

	cfg, err := NewLoader(path, nil).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TallyURL != "http://10.0.0.5:9000" {
		t.Errorf("TallyURL = %q", cfg.TallyURL)
	}
	if cfg.BackendURL != "https://api.example.com" || cfg.Token != "secret-token" {
		t.Errorf("backend config = %q / %q", cfg.BackendURL, cfg.Token)
	}
	if len(cfg.Groups) != 2 || cfg.Groups[0] != "Sundry Debtors" {
		t.Errorf("Groups = %v", cfg.Groups)
	}
	if !cfg.GeocodeEnabled {
		t.Error("GeocodeEnabled not read")
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %s", cfg.SyncInterval)
	}
	if cfg.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}

	// Unset keys keep their defaults.
	if cfg.PollLimit != DefaultPollLimit {
		t.Errorf("PollLimit = %d, want default", cfg.PollLimit)
	}
	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want default", cfg.DataDir)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty config validated")
	}

	cfg.BackendURL = "https://api.example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("config without token validated")
	}

	cfg.Token = "t"
	cfg.CompanyID = "c1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("complete config rejected: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := &Config{
		TallyURL:       "http://localhost:9000",
		TallyUsername:  "admin",
		TallyPassword:  "secret",
		BackendURL:     "https://api.example.com",
		Token:          "tok",
		CompanyID:      "comp-1",
		CompanyName:    "Raj Traders",
		Groups:         []string{"Sundry Debtors"},
		GeocodeEnabled: true,
		GeocodeAPIKey:  "maps-key",
		SyncInterval:   7 * time.Minute,
		PollInterval:   3 * time.Minute,
		BatchSize:      75,
		PollLimit:      10,
		DataDir:        "data",
		DashboardPort:  9999,
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600 (holds credentials)", info.Mode().Perm())
	}

	got, err := NewLoader(path, nil).Load()
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}

	if got.TallyUsername != "admin" || got.TallyPassword != "secret" {
		t.Errorf("credentials = %q / %q", got.TallyUsername, got.TallyPassword)
	}
	if got.CompanyID != "comp-1" || got.CompanyName != "Raj Traders" {
		t.Errorf("company = %q / %q", got.CompanyID, got.CompanyName)
	}
	if got.SyncInterval != 7*time.Minute || got.PollInterval != 3*time.Minute {
		t.Errorf("intervals = %s / %s", got.SyncInterval, got.PollInterval)
	}
	if got.BatchSize != 75 || got.PollLimit != 10 || got.DashboardPort != 9999 {
		t.Errorf("tuning = %d / %d / %d", got.BatchSize, got.PollLimit, got.DashboardPort)
	}
	if got.GeocodeAPIKey != "maps-key" {
		t.Errorf("GeocodeAPIKey = %q", got.GeocodeAPIKey)
	}
}
