package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var (
	ErrNotFound = errors.New("config file not found")
	ErrNoTitles = errors.New("no job titles configured")
)

const EnvPrefix = "ROD_JOBS"

type Config struct {
	JobTitles      []string      `mapstructure:"job_titles"`
	TargetJobCount int           `mapstructure:"target_job_count"`
	SearchHost     string        `mapstructure:"search_host"`
	OutputDir      string        `mapstructure:"output_dir"`
	Headless       bool          `mapstructure:"headless"`
	Browser        string        `mapstructure:"browser"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	SettleInterval time.Duration `mapstructure:"settle_interval"`
	Sqlite         string        `mapstructure:"sqlite"`
	MetricsPort    int           `mapstructure:"metrics_port"`
}

// SetDefaults registers the default of every key, which also makes every key
// resolvable from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("target_job_count", 50)
	v.SetDefault("search_host", "www.bing.com")
	v.SetDefault("output_dir", ".")
	v.SetDefault("headless", false)
	v.SetDefault("browser", "")
	v.SetDefault("wait_timeout", 15*time.Second)
	v.SetDefault("settle_interval", 3*time.Second)
	v.SetDefault("sqlite", "")
	v.SetDefault("metrics_port", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load reads the config file at path from fs into v and returns the validated result.
func Load(v *viper.Viper, fs afero.Fs, path string) (*Config, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	v.SetFs(fs)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	titles := c.JobTitles[:0]
	for _, t := range c.JobTitles {
		if strings.TrimSpace(t) != "" {
			titles = append(titles, t)
		}
	}
	c.JobTitles = titles

	if len(c.JobTitles) == 0 {
		return ErrNoTitles
	}
	if c.TargetJobCount < 1 {
		return fmt.Errorf("target_job_count must be positive, got %d", c.TargetJobCount)
	}
	if c.SearchHost == "" {
		return errors.New("search_host must not be empty")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be positive, got %s", c.WaitTimeout)
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("settle_interval must not be negative, got %s", c.SettleInterval)
	}
	return nil
}
