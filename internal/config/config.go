package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`

	API struct {
		Enabled       bool     `yaml:"enabled"`
		Port          int      `yaml:"port"`
		Keys          []string `yaml:"keys"`
		RatePerSecond float64  `yaml:"rate_per_second"`
		Burst         int      `yaml:"burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Scheduling struct {
		SlotMinutes                 int  `yaml:"slot_minutes"`
		BufferMinutes               int  `yaml:"buffer_minutes"`
		MinDurationMinutes          int  `yaml:"min_duration_minutes"`
		MaxDurationMinutes          int  `yaml:"max_duration_minutes"`
		AllowMultiDay               bool `yaml:"allow_multi_day"`
		AutoConfirmWithinDays       int  `yaml:"auto_confirm_within_days"`
		MaxAdvanceDays              int  `yaml:"max_advance_days"`
		DefaultSetupMinutes         int  `yaml:"default_setup_minutes"`
		DefaultTeardownMinutes      int  `yaml:"default_teardown_minutes"`
		DefaultEventDurationMinutes int  `yaml:"default_event_duration_minutes"`
		SeriesMaxAdvanceDays        int  `yaml:"series_max_advance_days"`
		GenerationIntervalMinutes   int  `yaml:"generation_interval_minutes"`
	} `yaml:"scheduling"`

	Pricing struct {
		HourlyRateCents int64              `yaml:"hourly_rate_cents"`
		FreeHours       map[string]float64 `yaml:"free_hours"` // tier -> hours per month
		DefaultTier     string             `yaml:"default_tier"`
		Members         map[int64]string   `yaml:"members"` // user id -> tier
	} `yaml:"pricing"`

	VenueConfigPath string  `yaml:"venue_config_path"`
	Admins          []int64 `yaml:"admins"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/practicespace.db"
	}
	if cfg.VenueConfigPath == "" {
		cfg.VenueConfigPath = filepath.Join(filepath.Dir(path), "venue.yaml")
	}
	if cfg.Pricing.HourlyRateCents < 0 {
		return nil, fmt.Errorf("pricing.hourly_rate_cents cannot be negative")
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadVenue loads the venue file referenced by the main config.
func (c *Config) LoadVenue() (*VenueConfig, error) {
	return LoadVenueConfig(c.VenueConfigPath)
}

func minutesOr(v, def int) time.Duration {
	if v <= 0 {
		return time.Duration(def) * time.Minute
	}
	return time.Duration(v) * time.Minute
}

func (c *Config) SlotStep() time.Duration {
	return minutesOr(c.Scheduling.SlotMinutes, 15)
}

// Buffer is the gap kept free around every reservation; zero disables it.
func (c *Config) Buffer() time.Duration {
	if c.Scheduling.BufferMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Scheduling.BufferMinutes) * time.Minute
}

func (c *Config) MinDuration() time.Duration {
	return minutesOr(c.Scheduling.MinDurationMinutes, 60)
}

func (c *Config) MaxDuration() time.Duration {
	return minutesOr(c.Scheduling.MaxDurationMinutes, 8*60)
}

func (c *Config) AutoConfirmWithin() time.Duration {
	if c.Scheduling.AutoConfirmWithinDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Scheduling.AutoConfirmWithinDays) * 24 * time.Hour
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Scheduling.MaxAdvanceDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.Scheduling.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) DefaultSetup() time.Duration {
	if c.Scheduling.DefaultSetupMinutes < 0 {
		return 0
	}
	return time.Duration(c.Scheduling.DefaultSetupMinutes) * time.Minute
}

func (c *Config) DefaultTeardown() time.Duration {
	if c.Scheduling.DefaultTeardownMinutes < 0 {
		return 0
	}
	return time.Duration(c.Scheduling.DefaultTeardownMinutes) * time.Minute
}

func (c *Config) DefaultEventDuration() time.Duration {
	return minutesOr(c.Scheduling.DefaultEventDurationMinutes, 180)
}

func (c *Config) SeriesMaxAdvanceDays() int {
	if c.Scheduling.SeriesMaxAdvanceDays <= 0 {
		return 90
	}
	return c.Scheduling.SeriesMaxAdvanceDays
}

func (c *Config) GenerationInterval() time.Duration {
	return minutesOr(c.Scheduling.GenerationIntervalMinutes, 60)
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) HourlyRateCents() int64 {
	if c.Pricing.HourlyRateCents == 0 {
		return 1500
	}
	return c.Pricing.HourlyRateCents
}

// FreeHoursByTier converts the configured monthly allowances to decimals.
func (c *Config) FreeHoursByTier() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.Pricing.FreeHours))
	tiers := make([]string, 0, len(c.Pricing.FreeHours))
	for tier := range c.Pricing.FreeHours {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		hours := c.Pricing.FreeHours[tier]
		if hours < 0 {
			hours = 0
		}
		out[tier] = decimal.NewFromFloat(hours)
	}
	return out
}
