package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string   `yaml:"port"`
		PublicURL       string   `yaml:"publicURL"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
		RateLimit       int      `yaml:"rateLimit"`
		RateWindow      string   `yaml:"rateWindow"`
		ShutdownTimeout string   `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Store struct {
		Backend    string `yaml:"backend"`
		Namespace  string `yaml:"namespace"`
		MaxRetries int    `yaml:"maxRetries"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Load reads YAML config from path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
		if c.Redis.Addr != "" {
			c.Store.Backend = BackendRedis
		}
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = "wager"
	}
	if c.Store.MaxRetries == 0 {
		c.Store.MaxRetries = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("store backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.Server.RateLimit)
	}
	if c.Store.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", c.Store.MaxRetries)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
