package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() with explicit missing file should error")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ClientID != "cdse-public" {
		t.Errorf("ClientID = %q, want cdse-public", cfg.ClientID)
	}
	if !strings.Contains(cfg.API.CatalogURL, "catalogue.dataspace.copernicus.eu") {
		t.Errorf("unexpected catalog URL %q", cfg.API.CatalogURL)
	}
	if cfg.API.MaxResults != 50 {
		t.Errorf("MaxResults = %d, want 50", cfg.API.MaxResults)
	}
	if cfg.Download.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Download.Concurrency)
	}
	if cfg.Download.Dir != "downloads" {
		t.Errorf("Dir = %q, want downloads", cfg.Download.Dir)
	}
	if cfg.Cleanup.Enabled {
		t.Error("cleanup should be disabled by default")
	}
	if got := cfg.APITimeout(); got != 60*time.Second {
		t.Errorf("APITimeout() = %v, want 60s", got)
	}
	if got := cfg.DownloadTimeout(); got != 2*time.Hour {
		t.Errorf("DownloadTimeout() = %v, want 2h", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COPERNICUS_USERNAME", "user@example.com")
	t.Setenv("COPERNICUS_PASSWORD", "secret")
	t.Setenv("COPERNICUS_API_MAX_RESULTS", "25")
	t.Setenv("COPERNICUS_DOWNLOAD_CONCURRENCY", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.HasCredentials() {
		t.Error("HasCredentials() = false after setting env vars")
	}
	if cfg.Username != "user@example.com" {
		t.Errorf("Username = %q", cfg.Username)
	}
	if cfg.API.MaxResults != 25 {
		t.Errorf("MaxResults = %d, want 25", cfg.API.MaxResults)
	}
	if cfg.Download.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Download.Concurrency)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }, true},
		{"zero max results", func(c *Config) { c.API.MaxResults = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Download.Concurrency = 0 }, true},
		{"ceiling below default", func(c *Config) { c.Download.MaxConcurrency = 1 }, true},
		{"empty catalog url", func(c *Config) { c.API.CatalogURL = "" }, true},
		{"cleanup enabled without criteria", func(c *Config) { c.Cleanup.Enabled = true }, true},
		{"cleanup enabled with age", func(c *Config) {
			c.Cleanup.Enabled = true
			c.Cleanup.MaxAgeDays = 30
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
