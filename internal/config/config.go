// Package config loads and manages the robots CLI configuration file stored
// at ~/.robots/config.json (or config.yaml).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir is the directory under the user's home for CLI state.
const DefaultConfigDir = ".robots"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.json"

// LegacyConfigFile is read when DefaultConfigFile does not exist.
const LegacyConfigFile = "config.yaml"

const (
	DefaultBaseURL = "http://localhost:8082"
	DefaultTimeout = 10 * time.Second
)

// Duration is a time.Duration written as a Go duration string ("10s") in
// both JSON and YAML.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timeout must be a duration string: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("timeout must be a duration string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config represents the contents of ~/.robots/config.json.
type Config struct {
	BaseURL       string   `json:"base_url" yaml:"base_url"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
	Verbose       bool     `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	CloudinaryURL string   `json:"cloudinary_url,omitempty" yaml:"cloudinary_url,omitempty"`

	// file holds the values environment overrides replaced and env the
	// overrides. Save writes the file value for a field still carrying its
	// override.
	file *Config
	env  *Config
}

// configDir returns the path to the config directory.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// Path returns the config file Load reads: config.json when present,
// otherwise config.yaml when present, otherwise config.json.
func Path() (path string, isJSON bool, err error) {
	dir, err := configDir()
	if err != nil {
		return "", false, err
	}
	jsonPath := filepath.Join(dir, DefaultConfigFile)
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, true, nil
	}
	yamlPath := filepath.Join(dir, LegacyConfigFile)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath, false, nil
	}
	return jsonPath, true, nil
}

// Load reads the user config, falling back to defaults when no file exists.
func Load() (*Config, error) {
	path, isJSON, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path, isJSON)
}

// LoadFrom reads the config at path, applies defaults and environment
// overrides (ROBOTS_BASE_URL, ROBOTS_TIMEOUT, CLOUDINARY_URL), and
// validates the result. A missing file yields the defaults.
func LoadFrom(path string, isJSON bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	case isJSON:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(DefaultTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	file, env := *c, Config{}
	if v := os.Getenv("ROBOTS_BASE_URL"); v != "" {
		c.BaseURL = v
		env.BaseURL = v
	}
	if v := os.Getenv("ROBOTS_TIMEOUT"); v != "" {
		if err := c.Timeout.parse(v); err != nil {
			return fmt.Errorf("ROBOTS_TIMEOUT: %w", err)
		}
		env.Timeout = c.Timeout
	}
	if v := os.Getenv("CLOUDINARY_URL"); v != "" {
		c.CloudinaryURL = v
		env.CloudinaryURL = v
	}
	c.file, c.env = &file, &env
	return nil
}

// persisted returns the config Save writes: fields whose value came from
// an environment variable keep the value the file had.
func (c *Config) persisted() *Config {
	out := *c
	out.file, out.env = nil, nil
	if c.env == nil {
		return &out
	}
	if c.env.BaseURL != "" && c.BaseURL == c.env.BaseURL {
		out.BaseURL = c.file.BaseURL
	}
	if c.env.Timeout != 0 && c.Timeout == c.env.Timeout {
		out.Timeout = c.file.Timeout
	}
	if c.env.CloudinaryURL != "" && c.CloudinaryURL == c.env.CloudinaryURL {
		out.CloudinaryURL = c.file.CloudinaryURL
	}
	return &out
}

// Redacted returns a copy safe to print, with the image host secret masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.file, out.env = nil, nil
	out.CloudinaryURL = redactURL(c.CloudinaryURL)
	return &out
}

func redactURL(s string) string {
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return "xxxxx"
	}
	return u.Redacted()
}

// Validate checks that the base URL is an absolute http(s) URL and the
// timeout is positive.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http or https URL", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// Save writes the config as JSON to ~/.robots/config.json.
func Save(cfg *Config) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	return SaveTo(filepath.Join(dir, DefaultConfigFile), cfg)
}

// SaveTo writes the config as JSON to path, creating parent directories.
// Values that came from environment variables are not written.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg.persisted(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func defaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: Duration(DefaultTimeout),
	}
}
