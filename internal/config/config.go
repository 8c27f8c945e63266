package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the application version, overridable at build time via ldflags.
var Version = "0.1.0"

// Config holds all application configuration.
type Config struct {
	// Copernicus Data Space account. Reads COPERNICUS_USERNAME and
	// COPERNICUS_PASSWORD from the environment.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`

	API       APIConfig       `mapstructure:"api"`
	Download  DownloadConfig  `mapstructure:"download"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Selection SelectionConfig `mapstructure:"selection"`
}

// APIConfig holds Copernicus Data Space endpoint configuration.
type APIConfig struct {
	CatalogURL     string `mapstructure:"catalog_url"`
	IdentityURL    string `mapstructure:"identity_url"`
	DownloadURL    string `mapstructure:"download_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxResults     int    `mapstructure:"max_results"`
}

// DownloadConfig holds download orchestration configuration.
type DownloadConfig struct {
	Dir            string `mapstructure:"dir"`
	BatchDir       string `mapstructure:"batch_dir"`
	SearchDir      string `mapstructure:"search_dir"`
	Concurrency    int    `mapstructure:"concurrency"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	TimeoutMinutes int    `mapstructure:"timeout_minutes"`
}

// CleanupConfig holds the scheduled auto-cleanup configuration.
type CleanupConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Cron           string  `mapstructure:"cron"`
	MaxAgeDays     int     `mapstructure:"max_age_days"`
	MaxTotalSizeMB float64 `mapstructure:"max_total_size_mb"`
	Kind           string  `mapstructure:"kind"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SelectionConfig tunes best-match scoring for search_and_download.
type SelectionConfig struct {
	RecencyWindowDays int     `mapstructure:"recency_window_days"`
	CloudCoverWeight  float64 `mapstructure:"cloud_cover_weight"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	// Dev convenience: pull COPERNICUS_* vars from a local .env if present.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.copernicus-mcp")
	}

	v.SetEnvPrefix("COPERNICUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("client_id", "cdse-public")

	// API defaults
	v.SetDefault("api.catalog_url", "https://catalogue.dataspace.copernicus.eu/odata/v1")
	v.SetDefault("api.identity_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("api.download_url", "https://download.dataspace.copernicus.eu/odata/v1")
	v.SetDefault("api.timeout_seconds", 60)
	v.SetDefault("api.max_results", 50)

	// Download defaults
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.batch_dir", "batch_downloads")
	v.SetDefault("download.search_dir", "search_downloads")
	v.SetDefault("download.concurrency", 3)
	v.SetDefault("download.max_concurrency", 8)
	v.SetDefault("download.timeout_minutes", 120)

	// Cleanup task defaults (disabled unless explicitly enabled)
	v.SetDefault("cleanup.enabled", false)
	v.SetDefault("cleanup.cron", "0 3 * * *")
	v.SetDefault("cleanup.max_age_days", 0)
	v.SetDefault("cleanup.max_total_size_mb", 0)
	v.SetDefault("cleanup.kind", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)

	// Best-match selection defaults
	v.SetDefault("selection.recency_window_days", 30)
	v.SetDefault("selection.cloud_cover_weight", 0.5)
}

// Validate checks configuration consistency. Credential presence is not
// checked here: search works anonymously and download paths surface a
// configuration error at call time.
func (c *Config) Validate() error {
	if c.API.CatalogURL == "" || c.API.IdentityURL == "" || c.API.DownloadURL == "" {
		return fmt.Errorf("api endpoints must not be empty")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive, got %d", c.API.TimeoutSeconds)
	}
	if c.API.MaxResults <= 0 {
		return fmt.Errorf("api.max_results must be positive, got %d", c.API.MaxResults)
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Download.MaxConcurrency < c.Download.Concurrency {
		return fmt.Errorf("download.max_concurrency (%d) must not be below download.concurrency (%d)",
			c.Download.MaxConcurrency, c.Download.Concurrency)
	}
	if c.Cleanup.Enabled && c.Cleanup.MaxAgeDays <= 0 && c.Cleanup.MaxTotalSizeMB <= 0 {
		return fmt.Errorf("cleanup.enabled requires cleanup.max_age_days or cleanup.max_total_size_mb")
	}
	return nil
}

// HasCredentials reports whether a Copernicus account is configured.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// APITimeout returns the request timeout for catalog and identity calls.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the per-transfer deadline for product downloads.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutMinutes) * time.Minute
}
