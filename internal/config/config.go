// Package config holds all wabridge configuration, loaded from a YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all wabridge configuration.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Browser BrowserConfig `yaml:"browser"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig configures the messaging client core.
type ClientConfig struct {
	// ID identifies this client instance. Used as the session-store key.
	// Defaults to a random UUID when empty.
	ID string `yaml:"id"`

	// DefaultSendSeen marks a chat as seen before sending into it.
	DefaultSendSeen bool `yaml:"default_send_seen"`

	// WaitForKeepSignedIn waits for the app's "keep me signed in" marker
	// before tearing the page down on destroy.
	WaitForKeepSignedIn bool `yaml:"wait_for_keep_signed_in"`
}

// BrowserConfig configures the controlled Chrome instance.
type BrowserConfig struct {
	// DebuggerURL attaches to a running Chrome instead of launching one.
	DebuggerURL string `yaml:"debugger_url"`

	// Launch is the Chrome binary followed by extra flags, used when no
	// debugger URL is given. Empty means the rod launcher picks a browser.
	Launch []string `yaml:"launch"`

	Headless bool `yaml:"headless"`

	// AppURL is the messaging web app to drive.
	AppURL string `yaml:"app_url"`

	// UserAgent overrides the page user agent. The web app rejects
	// obviously-automated agents, so a desktop one is the default.
	UserAgent string `yaml:"user_agent"`

	NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
}

// StoreConfig configures session token persistence.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			DefaultSendSeen: true,
		},
		Browser: BrowserConfig{
			Headless:            false,
			AppURL:              "https://web.whatsapp.com/",
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NavigationTimeoutMs: 60000,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    ".wabridge/sessions.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// NavigationTimeout returns the page navigation timeout.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.NavigationTimeoutMs == 0 {
		return 60 * time.Second
	}
	return time.Duration(b.NavigationTimeoutMs) * time.Millisecond
}

// Load reads a config file, falling back to defaults when it doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("WABRIDGE_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if url := os.Getenv("WABRIDGE_APP_URL"); url != "" {
		c.Browser.AppURL = url
	}
	if v := os.Getenv("WABRIDGE_HEADLESS"); v == "1" || v == "true" {
		c.Browser.Headless = true
	}
	if path := os.Getenv("WABRIDGE_STORE_PATH"); path != "" {
		c.Store.Path = path
		c.Store.Enabled = true
	}
	if id := os.Getenv("WABRIDGE_CLIENT_ID"); id != "" {
		c.Client.ID = id
	}
	if level := os.Getenv("WABRIDGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Browser.AppURL == "" {
		return fmt.Errorf("browser.app_url is required")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when store.enabled is set")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
