// Package config provides configuration management for the claude-bridge server.
// It handles loading and parsing YAML configuration files, and provides structured
// access to application settings including server port, credential file locations,
// preset directory, sampling-parameter policy, and cache-breakpoint placement.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sampling parameter names accepted by PreferSamplingParam.
const (
	SamplingTemperature = "temperature"
	SamplingTopP        = "top_p"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile switches log output to a rotating file under logs/.
	LoggingToFile bool `yaml:"logging-to-file"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url"`

	// CredentialsFile is the path of the persisted OAuth token record.
	CredentialsFile string `yaml:"credentials-file"`

	// ClaudeCLICredentialsFile is an optional fallback credential file written
	// by the Claude CLI. Read verbatim, never interpreted further.
	ClaudeCLICredentialsFile string `yaml:"claude-cli-credentials-file"`

	// PresetsDir is the directory containing preset YAML files.
	PresetsDir string `yaml:"presets-dir"`

	// APIKeys is a list of keys for authenticating clients to this proxy server.
	// An empty list allows all requests.
	APIKeys []string `yaml:"api-keys"`

	// FilterSamplingParams forwards at most one of temperature/top_p upstream.
	FilterSamplingParams *bool `yaml:"filter-sampling-params"`

	// PreferSamplingParam selects which sampling parameter survives filtering
	// when a request carries both. Either "temperature" or "top_p".
	PreferSamplingParam string `yaml:"prefer-sampling-param"`

	// CacheBreakpoints is the number of cache-control markers placed on the
	// outbound message list. Tuned for the upstream prefix-cache lookback window.
	CacheBreakpoints int `yaml:"cache-breakpoints"`

	// RequestRetry defines the retry budget after an upstream 401.
	RequestRetry int `yaml:"request-retry"`
}

// FilterSampling reports whether sampling-parameter filtering is enabled.
// Defaults to true when the key is absent from the YAML file.
func (c *Config) FilterSampling() bool {
	if c.FilterSamplingParams == nil {
		return true
	}
	return *c.FilterSamplingParams
}

// PreferredSamplingParam returns the configured surviving sampling parameter,
// defaulting to temperature.
func (c *Config) PreferredSamplingParam() string {
	if c.PreferSamplingParam == SamplingTopP {
		return SamplingTopP
	}
	return SamplingTemperature
}

// LoadConfig reads a YAML configuration file from the given path, unmarshals
// it into a Config struct, applies defaults, and returns it.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file exists on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8085
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = "~/.claude-bridge/credentials.json"
	}
	if c.ClaudeCLICredentialsFile == "" {
		c.ClaudeCLICredentialsFile = "~/.claude/.credentials.json"
	}
	if c.CacheBreakpoints == 0 {
		c.CacheBreakpoints = 2
	}
	if c.RequestRetry == 0 {
		c.RequestRetry = 1
	}
	c.CredentialsFile = ExpandPath(c.CredentialsFile)
	c.ClaudeCLICredentialsFile = ExpandPath(c.ClaudeCLICredentialsFile)
	if c.PresetsDir != "" {
		c.PresetsDir = ExpandPath(c.PresetsDir)
	}
}

// ExpandPath replaces a leading "~" with the current user's home directory.
func ExpandPath(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
