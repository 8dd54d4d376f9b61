package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StationConfig declares a bookable station in the catalog.
type StationConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite (default) or postgres
		Path   string `yaml:"path"`   // sqlite file path
		DSN    string `yaml:"dsn"`    // postgres connection string
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	AMQP struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"amqp"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Booking struct {
		MinAdvanceMinutes int `yaml:"min_advance_minutes"`
		MaxAdvanceDays    int `yaml:"max_advance_days"`
		MaxActivePerUser  int `yaml:"max_active_per_user"`
	} `yaml:"booking"`

	Reminders struct {
		Enabled          bool    `yaml:"enabled"`
		CheckMinutes     int     `yaml:"check_minutes"`
		HoursBefore      int     `yaml:"hours_before"`
		NotifyRatePerSec float64 `yaml:"notify_rate_per_sec"`
		NotifyBurst      int     `yaml:"notify_burst"`
	} `yaml:"reminders"`

	Stations []StationConfig `yaml:"stations"`
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

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/lan-party.db"
	}

	if cfg.Database.Driver == "sqlite" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) ReminderCheckInterval() time.Duration {
	if c.Reminders.CheckMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.CheckMinutes) * time.Minute
}

func (c *Config) ReminderLookAhead() time.Duration {
	hours := c.Reminders.HoursBefore
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
