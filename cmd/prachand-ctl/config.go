// ABOUTME: Configuration loading for prachand-ctl
// ABOUTME: Loads TOML config from XDG path; the token may come from the environment

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
	Shell   ShellConfig   `toml:"shell"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	URL                string `toml:"url"`
	Token              string `toml:"token"`
	CAFile             string `toml:"ca_file"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	ProxyURL           string `toml:"proxy_url"`
	Timeout            string `toml:"timeout"`
	RetryAttempts      int    `toml:"retry_attempts"`
	RetryDelay         string `toml:"retry_delay"`

	timeout    time.Duration
	retryDelay time.Duration
}

type ShellConfig struct {
	InitialWait  string `toml:"initial_wait"`
	PollInterval string `toml:"poll_interval"`
	WaitTimeout  string `toml:"wait_timeout"`

	initialWait  time.Duration
	pollInterval time.Duration
	waitTimeout  time.Duration
}

type LoggingConfig struct {
	Level string `toml:"level"`
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
	return &cfg, nil
}

// loadConfig resolves the config path (flag, then $PRACHAND_CTL_CONFIG,
// then XDG), applies $PRACHAND_TOKEN, and validates. Only a missing file
// at the XDG location is tolerated.
func loadConfig(flagPath string) (*Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("PRACHAND_CTL_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(configHome(), "prachand", "ctl.toml")
	}

	cfg, err := Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = &Config{}
	default:
		return nil, err
	}

	if token := os.Getenv("PRACHAND_TOKEN"); token != "" {
		cfg.Server.Token = token
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
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

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
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
	if c.Shell.InitialWait == "" {
		c.Shell.InitialWait = "2s"
	}
	if c.Shell.PollInterval == "" {
		c.Shell.PollInterval = "1s"
	}
	if c.Shell.WaitTimeout == "" {
		c.Shell.WaitTimeout = "30s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
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
	if c.Server.Token == "" {
		return fmt.Errorf("server.token is required (or set PRACHAND_TOKEN)")
	}
	if c.Server.RetryAttempts < 1 {
		return fmt.Errorf("server.retry_attempts must be positive, got %d", c.Server.RetryAttempts)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.timeout", c.Server.Timeout, &c.Server.timeout},
		{"server.retry_delay", c.Server.RetryDelay, &c.Server.retryDelay},
		{"shell.initial_wait", c.Shell.InitialWait, &c.Shell.initialWait},
		{"shell.poll_interval", c.Shell.PollInterval, &c.Shell.pollInterval},
		{"shell.wait_timeout", c.Shell.WaitTimeout, &c.Shell.waitTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
		*d.dst = v
	}
	return nil
}
