// Package config loads settings from an optional YAML file with environment
// variable overrides. A .env file is honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/couchgm/auctionwatch/internal/models"
	"github.com/couchgm/auctionwatch/internal/valuation"
)

// Duration wraps time.Duration so YAML values like "90s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full application configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Upstream struct {
		BaseURL string        `yaml:"base_url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"upstream"`

	Cache struct {
		TTL        Duration `yaml:"ttl"`
		SweepCron  string        `yaml:"sweep_cron"`
		SweepGrace Duration `yaml:"sweep_grace"`
	} `yaml:"cache"`

	Lock struct {
		TTL          Duration `yaml:"ttl"`
		PollInterval Duration `yaml:"poll_interval"`
		MaxPolls     int           `yaml:"max_polls"`
	} `yaml:"lock"`

	NATS struct {
		URL      string `yaml:"url"`
		Embedded bool   `yaml:"embedded"`
		StoreDir string `yaml:"store_dir"`
	} `yaml:"nats"`

	Projections struct {
		Driver string `yaml:"driver"` // memory, sqlite, postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"projections"`

	Analytics struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Database string `yaml:"database"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"analytics"`

	Auth struct {
		Mode         string `yaml:"mode"` // mock, oidc
		BaseURL      string `yaml:"base_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURL  string `yaml:"redirect_url"`
	} `yaml:"auth"`

	League   models.LeagueConfig      `yaml:"league"`
	Scarcity valuation.ScarcityPolicy `yaml:"scarcity"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	cfg := &Config{}
	cfg.Port = "8080"
	cfg.LogLevel = "info"
	cfg.Upstream.Timeout = Duration(30 * time.Second)
	cfg.Cache.TTL = Duration(5 * time.Minute)
	cfg.Cache.SweepCron = "*/5 * * * *"
	cfg.Cache.SweepGrace = Duration(30 * time.Minute)
	cfg.Lock.TTL = Duration(60 * time.Second)
	cfg.Lock.PollInterval = Duration(500 * time.Millisecond)
	cfg.Lock.MaxPolls = 20
	cfg.NATS.Embedded = true
	cfg.Projections.Driver = "memory"
	cfg.Auth.Mode = "mock"
	cfg.League = models.LeagueConfig{Teams: 12, BudgetPerTeam: 260}
	cfg.Scarcity = valuation.DefaultScarcityPolicy()
	return cfg
}

// Load reads the YAML file at path (skipped when empty or missing), then
// applies environment overrides. A .env file is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Port, "PORT")
	envString(&c.LogLevel, "LOG_LEVEL")
	envString(&c.Upstream.BaseURL, "UPSTREAM_BASE_URL")
	envDuration(&c.Upstream.Timeout, "UPSTREAM_TIMEOUT")
	envDuration(&c.Cache.TTL, "CACHE_TTL")
	envString(&c.Cache.SweepCron, "CACHE_SWEEP_CRON")
	envDuration(&c.Cache.SweepGrace, "CACHE_SWEEP_GRACE")
	envDuration(&c.Lock.TTL, "LOCK_TTL")
	envDuration(&c.Lock.PollInterval, "LOCK_POLL_INTERVAL")
	envInt(&c.Lock.MaxPolls, "LOCK_MAX_POLLS")
	envString(&c.NATS.URL, "NATS_URL")
	envBool(&c.NATS.Embedded, "NATS_EMBEDDED")
	envString(&c.NATS.StoreDir, "NATS_STORE_DIR")
	envString(&c.Projections.Driver, "PROJECTIONS_DRIVER")
	envString(&c.Projections.DSN, "PROJECTIONS_DSN")
	envBool(&c.Analytics.Enabled, "ANALYTICS_ENABLED")
	envString(&c.Analytics.Addr, "ANALYTICS_ADDR")
	envString(&c.Analytics.Database, "ANALYTICS_DATABASE")
	envString(&c.Analytics.Username, "ANALYTICS_USERNAME")
	envString(&c.Analytics.Password, "ANALYTICS_PASSWORD")
	envString(&c.Auth.Mode, "AUTH_MODE")
	envString(&c.Auth.BaseURL, "AUTH_BASE_URL")
	envString(&c.Auth.ClientID, "AUTH_CLIENT_ID")
	envString(&c.Auth.ClientSecret, "AUTH_CLIENT_SECRET")
	envString(&c.Auth.RedirectURL, "AUTH_REDIRECT_URL")
	envInt(&c.League.Teams, "LEAGUE_TEAMS")
	envFloat(&c.League.BudgetPerTeam, "LEAGUE_BUDGET_PER_TEAM")
}

func (c *Config) validate() error {
	if !c.League.Valid() {
		return fmt.Errorf("league config needs positive team count and budget, got %d teams at %.0f",
			c.League.Teams, c.League.BudgetPerTeam)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL.Std())
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock ttl must be positive, got %s", c.Lock.TTL.Std())
	}
	switch c.Projections.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown projections driver %q", c.Projections.Driver)
	}
	switch c.Auth.Mode {
	case "mock", "oidc":
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
