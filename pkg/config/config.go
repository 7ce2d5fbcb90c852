package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Upstream struct {
		BaseURL     string        `yaml:"base_url" validate:"required,url"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		MaxAttempts int           `yaml:"max_attempts" default:"2" validate:"gte=1,lte=5"`
		Backoff     time.Duration `yaml:"backoff" default:"200ms"`
	} `yaml:"upstream"`
	Sources struct {
		Vision struct {
			Prefix string `yaml:"prefix" default:"/results"`
		} `yaml:"vision"`
		API struct {
			Enabled bool   `yaml:"enabled"`
			Prefix  string `yaml:"prefix" default:"/api_results"`
		} `yaml:"api"`
	} `yaml:"sources"`
	Staleness struct {
		Live time.Duration `yaml:"live" default:"5m"`
		// Historical <= 0 means historical snapshots are never refetched.
		Historical time.Duration `yaml:"historical" default:"0s"`
	} `yaml:"staleness"`
	Cache struct {
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
		Redis           struct {
			Enabled     bool          `yaml:"enabled"`
			Addr        string        `yaml:"addr" default:"localhost:6379"`
			Password    string        `yaml:"password"`
			DB          int           `yaml:"db"`
			Prefix      string        `yaml:"prefix" default:"signalboard"`
			PoolSize    int           `yaml:"pool_size" default:"10" validate:"gte=1"`
			MinIdle     int           `yaml:"min_idle" default:"2" validate:"gte=0"`
			PoolTimeout time.Duration `yaml:"pool_timeout" default:"4s"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Views struct {
		MarkerTTL time.Duration     `yaml:"marker_ttl" default:"24h"`
		Policies  map[string]string `yaml:"policies" validate:"dive,keys,oneof=vision api combined,endkeys,oneof=always on_visit lazy"`
		LazyUnits map[string]string `yaml:"lazy_units"`
		AssetBase string            `yaml:"asset_base"`
	} `yaml:"views"`
	Notify struct {
		DisplayDuration time.Duration `yaml:"display_duration" default:"2s"`
	} `yaml:"notify"`
	Session struct {
		MaxIdle       time.Duration `yaml:"max_idle" default:"30m"`
		SweepInterval time.Duration `yaml:"sweep_interval" default:"1m"`
		RateLimit     float64       `yaml:"rate_limit" default:"10"`
		Burst         float64       `yaml:"burst" default:"20"`
	} `yaml:"session"`
	Markets struct {
		KOSPI  []string `yaml:"kospi"`
		KOSDAQ []string `yaml:"kosdaq"`
	} `yaml:"markets"`
	Events struct {
		Enabled     bool     `yaml:"enabled"`
		Brokers     []string `yaml:"brokers"`
		Topic       string   `yaml:"topic" default:"signalboard.snapshots"`
		Compression string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		MaxAttempts int      `yaml:"max_attempts" default:"3"`
		Async       bool     `yaml:"async" default:"true"`
	} `yaml:"events"`
}

var validate = validator.New()

// Default returns a config populated from struct defaults only.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(b)
}

func decode(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs after the overrides are applied.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = strings.Split(v, ",")
		c.Events.Enabled = true
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return fmt.Errorf("events.brokers cannot be empty when events are enabled")
	}
	for tab, policy := range c.Views.Policies {
		if policy == "lazy" && c.Views.LazyUnits[tab] == "" {
			return fmt.Errorf("views.lazy_units.%s is required for a lazy tab", tab)
		}
	}
	return nil
}
