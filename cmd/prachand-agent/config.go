// ABOUTME: Configuration loading for prachand-agent
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Agent   AgentConfig   `toml:"agent"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	URL                string `toml:"url"`
	CAFile             string `toml:"ca_file"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	ProxyURL           string `toml:"proxy_url"`
	Timeout            string `toml:"timeout"`
	RetryAttempts      int    `toml:"retry_attempts"`
	RetryDelay         string `toml:"retry_delay"`

	timeout    time.Duration
	retryDelay time.Duration
}

type AgentConfig struct {
	StatePath    string `toml:"state_path"`
	PollInterval string `toml:"poll_interval"`

	pollInterval time.Duration
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// defaultConfig is used when no config file exists.
func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// loadConfig resolves the config path. A missing file at the default
// location yields defaults; a missing file named explicitly is an error.
func loadConfig(flagPath string) (*Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("PRACHAND_AGENT_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "prachand", "agent.toml")
	}

	cfg, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg = defaultConfig()
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, fallback)
}

func (c *Config) applyDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = "http://127.0.0.1:1234"
	}
	if c.Server.Timeout == "" {
		c.Server.Timeout = "30s"
	}
	if c.Server.RetryAttempts == 0 {
		c.Server.RetryAttempts = 5
	}
	if c.Server.RetryDelay == "" {
		c.Server.RetryDelay = "1s"
	}
	if c.Agent.StatePath == "" {
		c.Agent.StatePath = filepath.Join(xdgDir("XDG_DATA_HOME", ".local/share"), "prachand", "agent-state.toml")
	}
	if c.Agent.PollInterval == "" {
		c.Agent.PollInterval = "5s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https scheme")
	}

	if c.Server.timeout, err = time.ParseDuration(c.Server.Timeout); err != nil {
		return fmt.Errorf("server.timeout: %w", err)
	}
	if c.Server.retryDelay, err = time.ParseDuration(c.Server.RetryDelay); err != nil {
		return fmt.Errorf("server.retry_delay: %w", err)
	}
	if c.Server.RetryAttempts < 1 {
		return fmt.Errorf("server.retry_attempts must be positive, got %d", c.Server.RetryAttempts)
	}

	if c.Agent.pollInterval, err = time.ParseDuration(c.Agent.PollInterval); err != nil {
		return fmt.Errorf("agent.poll_interval: %w", err)
	}
	if c.Agent.pollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
