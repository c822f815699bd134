package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML schema. All values should be supplied via YAML; we avoid hard-coded defaults.
// Minimal validation occurs in Validate().
type Config struct {
	Version  int          `yaml:"version"`
	General  General      `yaml:"general"`
	Source   Source       `yaml:"source"`
	Network  Network      `yaml:"network"`
	Download DownloadOpts `yaml:"download"`
	Parser   ParserOpts   `yaml:"parser"`
	Filter   FilterOpts   `yaml:"filter"`
	History  History      `yaml:"history"`
	Logging  Logging      `yaml:"logging"`
	Metrics  Metrics      `yaml:"metrics"`
	UI       UIOptions    `yaml:"ui"`
}

type General struct {
	DataRoot     string `yaml:"data_root"`
	DownloadRoot string `yaml:"download_root"`
	// PagePath is the saved invoice-table HTML page to load rows from.
	PagePath string `yaml:"page_path"`
	DryRun   bool   `yaml:"dry_run"`
}

type Source struct {
	// BaseURL is the document endpoint root, e.g. https://sellercentral.example.com
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	// SessionCookieEnv names the environment variable holding the session cookie.
	SessionCookieEnv string `yaml:"session_cookie_env"`
}

type Network struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type DownloadOpts struct {
	// DelayMS is the fixed pause between items; downloads are strictly
	// sequential to avoid upstream rate limiting.
	DelayMS    int `yaml:"delay_ms"`
	RetryLimit int `yaml:"retry_limit"`
}

type ParserOpts struct {
	// ChunkSize is the number of rows parsed per batch during cache init.
	ChunkSize int `yaml:"chunk_size"`
}

type FilterOpts struct {
	DebounceMS int `yaml:"debounce_ms"`
}

type History struct {
	Backend string `yaml:"backend"` // json | sqlite
}

type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

type Metrics struct {
	PrometheusTextfile PromTextfile `yaml:"prometheus_textfile"`
}

type PromTextfile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type UIOptions struct {
	// RefreshHz controls the TUI refresh frequency (ticks per second). If 0, defaults to 4.
	// Values above 10 are clamped to 10 to avoid excessive CPU usage.
	RefreshHz int `yaml:"refresh_hz"`
	// Fuzzy makes the TUI filter start in fuzzy-match mode instead of substring.
	Fuzzy bool `yaml:"fuzzy"`
}

// Load reads, parses, expands, and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	// Expand ${ENV} placeholders before unmarshalling
	b = []byte(os.ExpandEnv(string(b)))
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.DataRoot, err = expandTilde(c.General.DataRoot); err != nil {
		return err
	}
	if c.General.DownloadRoot, err = expandTilde(c.General.DownloadRoot); err != nil {
		return err
	}
	if c.General.PagePath, err = expandTilde(c.General.PagePath); err != nil {
		return err
	}
	if c.Metrics.PrometheusTextfile.Path, err = expandTilde(c.Metrics.PrometheusTextfile.Path); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if c.General.DataRoot == "" {
		return errors.New("general.data_root is required")
	}
	if c.General.DownloadRoot == "" {
		return errors.New("general.download_root is required")
	}
	if c.Network.TimeoutSeconds < 0 {
		return errors.New("network.timeout_seconds must be >= 0")
	}
	if c.Download.DelayMS < 0 {
		return errors.New("download.delay_ms must be >= 0")
	}
	if c.Download.RetryLimit < 0 {
		return errors.New("download.retry_limit must be >= 0")
	}
	if c.Parser.ChunkSize < 0 {
		return errors.New("parser.chunk_size must be >= 0")
	}
	if c.Filter.DebounceMS < 0 {
		return errors.New("filter.debounce_ms must be >= 0")
	}
	switch strings.ToLower(c.History.Backend) {
	case "", "json", "sqlite":
		// ok
	default:
		return fmt.Errorf("history.backend invalid: %s", c.History.Backend)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "json":
		// ok
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	if c.UI.RefreshHz < 0 {
		return errors.New("ui.refresh_hz must be >= 0")
	}
	return nil
}

// SessionCookie resolves the session cookie from the configured env var.
func (c *Config) SessionCookie() string {
	env := strings.TrimSpace(c.Source.SessionCookieEnv)
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// TimeoutSecondsOrDefault returns the per-request timeout, defaulting to 60s.
func (c *Config) TimeoutSecondsOrDefault() int {
	if c.Network.TimeoutSeconds > 0 {
		return c.Network.TimeoutSeconds
	}
	return 60
}

// RetryLimitOrDefault returns the retry ceiling, defaulting to 3.
func (c *Config) RetryLimitOrDefault() int {
	if c.Download.RetryLimit > 0 {
		return c.Download.RetryLimit
	}
	return 3
}

// DelayOrDefaultMS returns the inter-item delay, defaulting to 2000ms.
func (c *Config) DelayOrDefaultMS() int {
	if c.Download.DelayMS > 0 {
		return c.Download.DelayMS
	}
	return 2000
}

// ChunkSizeOrDefault returns the parse batch size, defaulting to 50 rows.
func (c *Config) ChunkSizeOrDefault() int {
	if c.Parser.ChunkSize > 0 {
		return c.Parser.ChunkSize
	}
	return 50
}

// DebounceOrDefaultMS returns the filter quiet period, defaulting to 300ms.
func (c *Config) DebounceOrDefaultMS() int {
	if c.Filter.DebounceMS > 0 {
		return c.Filter.DebounceMS
	}
	return 300
}

func expandTilde(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p[0] != '~' {
		return p, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return h, nil
	}
	return filepath.Join(h, p[2:]), nil
}
