package config

import (
	"os"
	"testing"

	"github.com/musicvault/musicvault/internal/constants"
)

func TestLoad(t *testing.T) {
	// Test default values
	cfg := Load()

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}

	if cfg.DBPath != constants.DefaultDBPath {
		t.Errorf("Expected DBPath to be %s, got %s", constants.DefaultDBPath, cfg.DBPath)
	}

	if cfg.RecordsURL != constants.DefaultRecordsURL {
		t.Errorf("Expected RecordsURL to be %s, got %s", constants.DefaultRecordsURL, cfg.RecordsURL)
	}

	if cfg.Concurrency != constants.DefaultConcurrency {
		t.Errorf("Expected Concurrency to be %d, got %d", constants.DefaultConcurrency, cfg.Concurrency)
	}

	// Check MusicDir is not empty (depends on user's home dir)
	if cfg.MusicDir == "" {
		t.Error("Expected MusicDir to not be empty")
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("DB_PATH", "/tmp/test.db")
	os.Setenv("RECORDS_URL", "http://example.com:8000")
	os.Setenv("MAX_CONCURRENT_DOWNLOADS", "5")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_PATH")
		os.Unsetenv("RECORDS_URL")
		os.Unsetenv("MAX_CONCURRENT_DOWNLOADS")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DBPath to be /tmp/test.db, got %s", cfg.DBPath)
	}

	if cfg.RecordsURL != "http://example.com:8000" {
		t.Errorf("Expected RecordsURL to be http://example.com:8000, got %s", cfg.RecordsURL)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Expected Concurrency to be 5, got %d", cfg.Concurrency)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:        "8080",
		DBPath:      "test.db",
		MusicDir:    "/tmp/music",
		RecordsURL:  "http://localhost:8000",
		BlobsURL:    "http://localhost:8000",
		Concurrency: 2,
		LogLevel:    "info",
		LogFormat:   "text",
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"invalid port - not a number", func(c *Config) { c.Port = "abc" }, true},
		{"invalid port - out of range", func(c *Config) { c.Port = "99999" }, true},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db path", func(c *Config) { c.DBPath = "" }, true},
		{"empty music dir", func(c *Config) { c.MusicDir = "" }, true},
		{"empty records url", func(c *Config) { c.RecordsURL = "" }, true},
		{"empty blobs url", func(c *Config) { c.BlobsURL = "" }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "invalid" }, true},
		{"invalid log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "test_value")
	defer os.Unsetenv("TEST_VAR")

	value := getEnv("TEST_VAR", "default")
	if value != "test_value" {
		t.Errorf("Expected 'test_value', got '%s'", value)
	}

	value = getEnv("NON_EXISTENT_VAR", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
