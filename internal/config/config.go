package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-tonesense/pkg/validation"
)

type Config struct {
	Host               string
	Port               string
	ServiceURL         string
	RequestTimeout     time.Duration
	AnalysisTimeout    time.Duration
	RetryAttempts      int
	RetryBackoff       time.Duration
	MaxRequestBodySize int64
	Workers            int

	CameraUserDevice        int
	CameraEnvironmentDevice int

	PreferencesPath string
	DarkDefault     bool
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadFromEnv reads configuration from the environment, after loading a
// .env file from the working directory when one exists.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "127.0.0.1"),
		Port:               getEnvOrDefault("PORT", "8090"),
		ServiceURL:         strings.TrimRight(getEnvOrDefault("TONESENSE_SERVICE_URL", "http://localhost:8000"), "/"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 60*time.Second),
		RetryAttempts:      int(parseIntOrDefault("RETRY_ATTEMPTS", 1)),
		RetryBackoff:       parseDurationOrDefault("RETRY_BACKOFF", time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 12*1024*1024), // 12MB, room for multipart overhead
		Workers:            int(parseIntOrDefault("WORKERS", 2)),

		CameraUserDevice:        int(parseIntOrDefault("CAMERA_USER_DEVICE", 0)),
		CameraEnvironmentDevice: int(parseIntOrDefault("CAMERA_ENVIRONMENT_DEVICE", 1)),

		PreferencesPath: getEnvOrDefault("TONESENSE_PREFS_PATH", defaultPreferencesPath()),
		DarkDefault:     parseBoolOrDefault("TONESENSE_DARK_DEFAULT", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the service URL
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if err := validation.NewURLValidator().ValidateServiceURL(c.ServiceURL); err != nil {
		return fmt.Errorf("invalid TONESENSE_SERVICE_URL %q: %w", c.ServiceURL, err)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, analysis=%s)",
			c.RequestTimeout, c.AnalysisTimeout)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 1 (got %d)", c.RetryAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1 (got %d)", c.Workers)
	}
	if c.CameraUserDevice < 0 || c.CameraEnvironmentDevice < 0 {
		return fmt.Errorf("camera device indices must be >= 0")
	}
	return nil
}

func defaultPreferencesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "tonesense-preferences.yaml")
	}
	return filepath.Join(dir, "tonesense", "preferences.yaml")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
