package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the adversary server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Dispatch DispatchConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// DispatchConfig tunes the job rendezvous machinery. PollInterval is the
// liveness fallback between wakeup signals, StatusTTL bounds the cached
// status mirror, and WaitTimeout caps how long an operator request may
// block on an unfinished job.
type DispatchConfig struct {
	PollInterval time.Duration
	StatusTTL    time.Duration
	WaitTimeout  time.Duration
}

// Load builds configuration in three layers: defaults, then the optional
// YAML file named by ADVERSARY_CONFIG, then environment variables. The
// result is validated before being returned.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8888,
			Env:  "development",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Dispatch: DispatchConfig{
			PollInterval: 10 * time.Second,
			StatusTTL:    30 * time.Minute,
			WaitTimeout:  120 * time.Second,
		},
	}

	if path := os.Getenv("ADVERSARY_CONFIG"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.Server.Port = envInt("ADVERSARY_PORT", cfg.Server.Port)
	cfg.Server.Env = envString("ADVERSARY_ENV", cfg.Server.Env)
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)
	cfg.Redis.URL = envString("REDIS_URL", cfg.Redis.URL)
	cfg.Dispatch.PollInterval = envDuration("ADVERSARY_JOB_POLL_INTERVAL", cfg.Dispatch.PollInterval)
	cfg.Dispatch.StatusTTL = envDuration("ADVERSARY_JOB_STATUS_TTL", cfg.Dispatch.StatusTTL)
	cfg.Dispatch.WaitTimeout = envDuration("ADVERSARY_WAIT_TIMEOUT", cfg.Dispatch.WaitTimeout)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// fileConfig mirrors Config for the YAML file. Durations are strings in
// time.ParseDuration form, e.g. "30s" or "5m".
type fileConfig struct {
	Server struct {
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`
	Database struct {
		URL             string `yaml:"url"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Dispatch struct {
		PollInterval string `yaml:"poll_interval"`
		StatusTTL    string `yaml:"status_ttl"`
		WaitTimeout  string `yaml:"wait_timeout"`
	} `yaml:"dispatch"`
}

// loadFile merges the YAML file at path into cfg. Unlike environment
// fallbacks, a malformed file is an error: an explicit config file that
// does not parse should stop the server rather than be half-applied.
func loadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Server.Port != 0 {
		cfg.Server.Port = fc.Server.Port
	}
	if fc.Server.Env != "" {
		cfg.Server.Env = fc.Server.Env
	}
	if fc.Database.URL != "" {
		cfg.Database.URL = fc.Database.URL
	}
	if fc.Database.MaxOpenConns != 0 {
		cfg.Database.MaxOpenConns = fc.Database.MaxOpenConns
	}
	if fc.Database.MaxIdleConns != 0 {
		cfg.Database.MaxIdleConns = fc.Database.MaxIdleConns
	}
	if fc.Redis.URL != "" {
		cfg.Redis.URL = fc.Redis.URL
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.Database.ConnMaxLifetime, "database.conn_max_lifetime", &cfg.Database.ConnMaxLifetime},
		{fc.Dispatch.PollInterval, "dispatch.poll_interval", &cfg.Dispatch.PollInterval},
		{fc.Dispatch.StatusTTL, "dispatch.status_ttl", &cfg.Dispatch.StatusTTL},
		{fc.Dispatch.WaitTimeout, "dispatch.wait_timeout", &cfg.Dispatch.WaitTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parsing %s in %s: %w", d.name, path, err)
		}
		*d.dst = parsed
	}

	return nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("ADVERSARY_JOB_POLL_INTERVAL must be positive, got %s", c.Dispatch.PollInterval)
	}
	if c.Dispatch.StatusTTL <= 0 {
		return fmt.Errorf("ADVERSARY_JOB_STATUS_TTL must be positive, got %s", c.Dispatch.StatusTTL)
	}
	if c.Dispatch.WaitTimeout <= 0 {
		return fmt.Errorf("ADVERSARY_WAIT_TIMEOUT must be positive, got %s", c.Dispatch.WaitTimeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
