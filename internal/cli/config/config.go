package config

import (
	"fmt"
	"os"
	"time"

	"testbridge/internal/ciclient"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "http://127.0.0.1:5000"
	DefaultTimeout      = 10 * time.Second
	DefaultHistoryFile  = ".testbridge_history"
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 30 * time.Minute
)

// PollConfig controls "result wait".
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Config holds CLI configuration.
type Config struct {
	BaseURL     string          `yaml:"baseURL"`
	Timeout     time.Duration   `yaml:"timeout"`
	Tester      string          `yaml:"tester"`
	HistoryFile string          `yaml:"historyFile"`
	PrettyJSON  *bool           `yaml:"prettyJSON"`
	Poll        PollConfig      `yaml:"poll"`
	CI          ciclient.Config `yaml:"ci"`
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	ciclient.ApplyEnv(&cfg.CI)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = DefaultPollInterval
	}
	if cfg.Poll.Timeout <= 0 {
		cfg.Poll.Timeout = DefaultPollTimeout
	}
	if cfg.CI.Timeout <= 0 {
		cfg.CI.Timeout = ciclient.DefaultTimeout
	}
}
