package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validProviders = []string{"gemini", "anthropic", "openai"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/focus/focus.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "focus", "focus.yaml"))
	}

	paths = append(paths, "focus.yaml")

	if envPath := os.Getenv("FOCUS_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/focus/focus.yaml < ~/.config/focus/focus.yaml < ./focus.yaml < $FOCUS_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("FOCUS_API_KEY"); key != "" {
		cfg.Classifier.APIKey = key
	}
	if provider := os.Getenv("FOCUS_CLASSIFIER_PROVIDER"); provider != "" {
		cfg.Classifier.Provider = provider
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if !isLoopback(cfg.Server.Host) {
		return fmt.Errorf("server.host must be a loopback address, got %q: Focus serves the local browser only", cfg.Server.Host)
	}

	if !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		return fmt.Errorf("server.log_level must be one of %s, got %q", strings.Join(validLogLevels, ", "), cfg.Server.LogLevel)
	}

	cfg.Classifier.Provider = strings.ToLower(strings.TrimSpace(cfg.Classifier.Provider))
	if !slices.Contains(validProviders, cfg.Classifier.Provider) {
		return fmt.Errorf("classifier.provider must be one of %s, got %q", strings.Join(validProviders, ", "), cfg.Classifier.Provider)
	}

	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	c := cfg.Classifier
	check(c.MaxRetries >= 1, "classifier.max_retries must be at least 1")
	check(c.RetryDelay >= 0, "classifier.retry_delay must not be negative")
	check(c.AttemptTimeout > 0, "classifier.attempt_timeout must be positive")
	check(c.MaxPageChars > 0, "classifier.max_page_chars must be positive")
	check(c.ExcerptChars > 0, "classifier.excerpt_chars must be positive")

	check(cfg.Cache.TTL > 0, "cache.ttl must be positive")
	check(cfg.Cache.MaxEntries >= 1, "cache.max_entries must be at least 1")
	check(cfg.Cache.TrimmedSize >= 1 && cfg.Cache.TrimmedSize <= cfg.Cache.MaxEntries,
		"cache.trimmed_size must be between 1 and cache.max_entries (%d), got %d", cfg.Cache.MaxEntries, cfg.Cache.TrimmedSize)
	check(validInterval(cfg.Cache.CleanupInterval), "cache.cleanup_interval must be 0 or at least 1s")

	check(cfg.Flight.MinDuration >= 0, "flight.min_duration must not be negative")
	check(cfg.Flight.TurbulenceLimit >= 1, "flight.turbulence_limit must be at least 1")
	check(cfg.Flight.HistoryLimit >= 1, "flight.history_limit must be at least 1")

	check(validInterval(cfg.Stats.SaveInterval), "stats.save_interval must be 0 or at least 1s")
	check(cfg.RateLimit.RequestsPerMinute >= 0 && cfg.RateLimit.Burst >= 0, "rate_limit values must not be negative")

	if err := errors.Join(errs...); err != nil {
		return err
	}

	cfg.Server.ConfigDir = ExpandHome(cfg.Server.ConfigDir)
	cfg.Database.Path = ExpandHome(cfg.Database.Path)

	return nil
}

// validInterval accepts 0 (disabled) or a schedulable interval.
func validInterval(d time.Duration) bool {
	return d == 0 || d >= time.Second
}
