package config

import "time"

// Config is the root configuration for Focus.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Cache      CacheConfig      `yaml:"cache"`
	Flight     FlightConfig     `yaml:"flight"`
	Stats      StatsConfig      `yaml:"stats"`
	Focus      FocusConfig      `yaml:"focus"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	MCP        MCPConfig        `yaml:"mcp"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	ConfigDir string `yaml:"config_dir"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig selects and tunes the page classifier. APIKey is only the
// fallback used until the extension stores its own key.
type ClassifierConfig struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxPageChars   int           `yaml:"max_page_chars"`
	ExcerptChars   int           `yaml:"excerpt_chars"`
}

type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	TrimmedSize     int           `yaml:"trimmed_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type FlightConfig struct {
	MinDuration     time.Duration `yaml:"min_duration"`
	TurbulenceLimit int           `yaml:"turbulence_limit"`
	HistoryLimit    int           `yaml:"history_limit"`
	// RequireActive allows every page while no flight is in progress.
	RequireActive bool `yaml:"require_active"`
}

type StatsConfig struct {
	SaveInterval time.Duration `yaml:"save_interval"`
}

// FocusConfig seeds a fresh install.
type FocusConfig struct {
	Enabled               bool     `yaml:"enabled"`
	BlockList             []string `yaml:"block_list"`
	AllowList             []string `yaml:"allow_list"`
	ProductivityAllowlist []string `yaml:"productivity_allowlist"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8421,
			LogLevel:  "info",
			ConfigDir: "~/.config/focus",
		},
		Database: DatabaseConfig{
			Path: "~/.config/focus/focus.db",
		},
		Classifier: ClassifierConfig{
			Provider:       "gemini",
			MaxRetries:     3,
			RetryDelay:     time.Second,
			AttemptTimeout: 10 * time.Second,
			MaxPageChars:   30000,
			ExcerptChars:   5000,
		},
		Cache: CacheConfig{
			TTL:             time.Hour,
			MaxEntries:      100,
			TrimmedSize:     50,
			CleanupInterval: time.Hour,
		},
		Flight: FlightConfig{
			MinDuration:     3 * time.Minute,
			TurbulenceLimit: 5,
			HistoryLimit:    20,
		},
		Stats: StatsConfig{
			SaveInterval: 5 * time.Minute,
		},
		Focus: FocusConfig{
			Enabled: true,
			ProductivityAllowlist: []string{
				"docs.google.com",
				"drive.google.com",
				"gmail.com",
				"localhost",
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             120,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
