// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration for the nexus-router binary.
type Config struct {
	// Event store settings.
	DBPath string // SQLite path; ":memory:" is ephemeral.

	// Dispatch settings.
	DefaultAdapter    string        // adapter id the registry defaults to
	SubprocessCmd     []string      // base command for the subprocess adapter; empty disables it
	SubprocessTimeout time.Duration // per-call timeout for the subprocess adapter
	HTTPAdapterURL    string        // base URL for the http adapter; empty disables it

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (Config, error) {
	cfg := Config{
		DBPath:            envStr("NEXUS_DB_PATH", ":memory:"),
		DefaultAdapter:    envStr("NEXUS_DEFAULT_ADAPTER", "null"),
		SubprocessCmd:     envFields("NEXUS_SUBPROCESS_CMD"),
		SubprocessTimeout: envDuration("NEXUS_SUBPROCESS_TIMEOUT", 30*time.Second),
		HTTPAdapterURL:    envStr("NEXUS_HTTP_ADAPTER_URL", ""),
		OTELEndpoint:      envStr("NEXUS_OTEL_ENDPOINT", ""),
		OTELInsecure:      envBool("NEXUS_OTEL_INSECURE", false),
		ServiceName:       envStr("NEXUS_SERVICE_NAME", "nexus-router"),
		LogLevel:          envStr("NEXUS_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: NEXUS_DB_PATH must not be empty")
	}
	if c.SubprocessTimeout <= 0 {
		return fmt.Errorf("config: NEXUS_SUBPROCESS_TIMEOUT must be positive")
	}
	switch c.DefaultAdapter {
	case "null", "subprocess", "http":
	default:
		return fmt.Errorf("config: NEXUS_DEFAULT_ADAPTER %q is not a built-in adapter", c.DefaultAdapter)
	}
	if c.DefaultAdapter == "subprocess" && len(c.SubprocessCmd) == 0 {
		return fmt.Errorf("config: NEXUS_DEFAULT_ADAPTER=subprocess requires NEXUS_SUBPROCESS_CMD")
	}
	if c.DefaultAdapter == "http" && c.HTTPAdapterURL == "" {
		return fmt.Errorf("config: NEXUS_DEFAULT_ADAPTER=http requires NEXUS_HTTP_ADAPTER_URL")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFields(key string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Fields(v)
	}
	return nil
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
