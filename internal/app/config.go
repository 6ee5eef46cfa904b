package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"trend-data/internal/crawl"
	"trend-data/internal/model"
	"trend-data/internal/signal"
)

// Config holds application configuration. Values come from struct defaults, then the
// optional YAML file named by CONFIG_FILE, then the environment.
type Config struct {
	DataProvider    string        `yaml:"data_provider" default:"eastmoney" validate:"oneof=eastmoney"`
	DataDir         string        `yaml:"data_dir" default:"data" validate:"required"`
	SaveFormat      string        `yaml:"save_format" validate:"oneof=csv parquet json sqlite"`
	LogLevel        string        `yaml:"log_level" default:"info" validate:"oneof=debug info warn warning error"`
	LogFile         string        `yaml:"log_file"`
	InstrumentsFile string        `yaml:"instruments_file"`
	// Codes is a comma separated list used instead of InstrumentsFile.
	Codes           string        `yaml:"codes"`
	BeginDate       string        `yaml:"begin_date" default:"2018-06-21" validate:"datetime=2006-01-02"`
	Workers         int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	BaseURL         string        `yaml:"base_url" validate:"omitempty,url"`
	RequestInterval time.Duration `yaml:"request_interval" default:"200ms" validate:"gte=0"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"30s" validate:"gt=0"`
	Hour            bool          `yaml:"hour"`
	HolidaysFile    string        `yaml:"holidays_file"`
	RunHour         int           `yaml:"run_hour" default:"15" validate:"gte=0,lte=23"`
	RunMinute       int           `yaml:"run_minute" default:"30" validate:"gte=0,lte=59"`
	HTTPAddr        string        `yaml:"http_addr" default:":8080"`
	Redis           RedisConfig   `yaml:"redis"`
	Rules           signal.Rules  `yaml:"rules"`
}

// RedisConfig enables signal publication when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"trenddata"`
	TTL      time.Duration `yaml:"ttl" default:"168h" validate:"gte=0"`
}

// LoadConfig builds the configuration and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{Rules: signal.DefaultRules()}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.SaveFormat == "" {
		cfg.SaveFormat = getSaveFormat()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DataProvider = getEnv("DATA_PROVIDER", c.DataProvider)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.SaveFormat = getEnv("SAVE_FORMAT", c.SaveFormat)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.InstrumentsFile = getEnv("INSTRUMENTS_FILE", c.InstrumentsFile)
	c.Codes = getEnv("CODES", c.Codes)
	c.BeginDate = getEnv("BEGIN_DATE", c.BeginDate)
	c.BaseURL = getEnv("EASTMONEY_BASE_URL", c.BaseURL)
	c.HolidaysFile = getEnv("HOLIDAYS_FILE", c.HolidaysFile)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Prefix = getEnv("REDIS_PREFIX", c.Redis.Prefix)

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"WORKERS", &c.Workers},
		{"RUN_HOUR", &c.RunHour},
		{"RUN_MINUTE", &c.RunMinute},
		{"REDIS_DB", &c.Redis.DB},
	} {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	for _, e := range []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_INTERVAL", &c.RequestInterval},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"REDIS_TTL", &c.Redis.TTL},
	} {
		if v := os.Getenv(e.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = d
		}
	}
	if v := os.Getenv("HOUR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HOUR: %w", err)
		}
		c.Hour = b
	}
	if v := os.Getenv("PRICE_CEILING"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PRICE_CEILING: %w", err)
		}
		c.Rules.PriceCeiling = f
	}
	return nil
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if c.Rules.HourRefinement && !c.Hour {
		return fmt.Errorf("rules.hour_refinement needs hour bars (hour: true)")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getSaveFormat() string {
	switch os.Getenv("PROFILE") {
	case "dev", "development":
		return "csv"
	case "prod", "production", "":
		return "parquet"
	default:
		return "parquet"
	}
}

// Begin returns the first day of the requested history.
func (c *Config) Begin() time.Time {
	t, _ := time.Parse("2006-01-02", c.BeginDate)
	return t
}

// Granularities returns the refreshed granularities.
func (c *Config) Granularities() []model.Granularity {
	gs := []model.Granularity{model.Day, model.Week, model.Month}
	if c.Hour {
		gs = append(gs, model.Hour)
	}
	return gs
}

// SnapshotDir returns data/bars
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.DataDir, "bars")
}

// SignalsDir returns data/signals
func (c *Config) SignalsDir() string {
	return filepath.Join(c.DataDir, "signals")
}

// JournalPath returns path to .realigned.json
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, crawl.JournalFile)
}

// CodeList splits Codes on commas.
func (c *Config) CodeList() []string {
	var out []string
	for _, s := range strings.Split(c.Codes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
