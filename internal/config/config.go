package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/musicvault/musicvault/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port        string
	DBPath      string
	MusicDir    string
	RecordsURL  string
	BlobsURL    string
	Concurrency int
	LogLevel    string
	LogFormat   string
}

// Load loads configuration from the environment with defaults. A .env file in
// the working directory is read first if present.
func Load() *Config {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	defaultMusic := filepath.Join(home, constants.DefaultMusicDir)

	concurrency := constants.DefaultConcurrency
	if v := os.Getenv("MAX_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			concurrency = n
		}
	}

	return &Config{
		Port:        getEnv("PORT", constants.DefaultPort),
		DBPath:      getEnv("DB_PATH", constants.DefaultDBPath),
		MusicDir:    getEnv("MUSIC_DIR", defaultMusic),
		RecordsURL:  getEnv("RECORDS_URL", constants.DefaultRecordsURL),
		BlobsURL:    getEnv("BLOBS_URL", constants.DefaultBlobsURL),
		Concurrency: concurrency,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	if c.MusicDir == "" {
		errors = append(errors, "MUSIC_DIR cannot be empty")
	}

	if c.RecordsURL == "" {
		errors = append(errors, "RECORDS_URL cannot be empty")
	} else if _, err := url.Parse(c.RecordsURL); err != nil {
		errors = append(errors, fmt.Sprintf("RECORDS_URL is not a valid URL: %s", c.RecordsURL))
	}

	if c.BlobsURL == "" {
		errors = append(errors, "BLOBS_URL cannot be empty")
	} else if _, err := url.Parse(c.BlobsURL); err != nil {
		errors = append(errors, fmt.Sprintf("BLOBS_URL is not a valid URL: %s", c.BlobsURL))
	}

	if c.Concurrency < 1 {
		errors = append(errors, fmt.Sprintf("MAX_CONCURRENT_DOWNLOADS must be at least 1, got: %d", c.Concurrency))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
