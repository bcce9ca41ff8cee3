// Package config loads middleware configuration from config.yaml, the
// environment, and command-line flags, in increasing precedence. The file
// is watched so interval changes apply without a restart.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Defaults applied when the file and environment are silent.
const (
	DefaultTallyURL     = "http://localhost:9000"
	DefaultSyncInterval = 5 * time.Minute
	DefaultPollInterval = 2 * time.Minute
	DefaultBatchSize    = 100
	DefaultPollLimit    = 50
	DefaultDataDir      = "data"
	DefaultPort         = 8484
)

// Config is the fully resolved middleware configuration.
type Config struct {
	// Tally connection.
	TallyURL      string `mapstructure:"tally_url"`
	TallyUsername string `mapstructure:"tally_username"`
	TallyPassword string `mapstructure:"tally_password"`

	// Backend connection.
	BackendURL string `mapstructure:"backend_url"`
	Token      string `mapstructure:"token"`

	// Company selection.
	CompanyID   string `mapstructure:"company_id"`
	CompanyName string `mapstructure:"company_name"`

	// Groups restricts sync to ledgers under these parent groups.
	Groups []string `mapstructure:"groups"`

	// Geocoding.
	GeocodeEnabled bool   `mapstructure:"geocode_enabled"`
	GeocodeAPIKey  string `mapstructure:"geocode_api_key"`

	// Loop tuning.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollLimit    int           `mapstructure:"poll_limit"`

	// Paths and ports.
	DataDir       string `mapstructure:"data_dir"`
	LogFile       string `mapstructure:"log_file"`
	DashboardPort int    `mapstructure:"dashboard_port"`
}

// Validate checks the fields every sync operation needs.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is not configured (run setup)")
	}
	if c.Token == "" {
		return fmt.Errorf("token is not configured (run setup)")
	}
	if c.CompanyID == "" {
		return fmt.Errorf("company_id is not configured (run setup)")
	}
	return nil
}

// Loader owns the viper instance so callers can re-read and watch.
type Loader struct {
	v      *viper.Viper
	logger *log.Logger
}

// NewLoader builds a loader rooted at cfgFile (empty = ./config.yaml).
// Environment variables override the file: TALLYBRIDGE_BACKEND_URL,
// TALLYBRIDGE_TOKEN, and so on.
func NewLoader(cfgFile string, logger *log.Logger) *Loader {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TALLYBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("tally_url", DefaultTallyURL)
	v.SetDefault("sync_interval", DefaultSyncInterval)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("poll_limit", DefaultPollLimit)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("dashboard_port", DefaultPort)

	if logger == nil {
		logger = log.Default()
	}
	return &Loader{v: v, logger: logger}
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads the configuration. A missing config file is not an error; the
// defaults plus environment still apply so `companies` works pre-setup.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the file on change and invokes onChange with the fresh
// configuration. Parse failures keep the previous configuration.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			l.logger.Printf("Warning: config reload failed, keeping previous: %v", err)
			return
		}
		l.logger.Printf("Config reloaded from %s", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}
