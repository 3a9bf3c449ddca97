package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"app"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`

	HTTP struct {
		Address            string   `yaml:"address"`
		ReadTimeoutSeconds int      `yaml:"read_timeout_seconds"`
		AllowedOrigins     []string `yaml:"allowed_origins"`
		RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
		RateLimitBurst     int      `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		Audience  string `yaml:"audience"`
	} `yaml:"auth"`

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

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		WorkStartHour       int  `yaml:"work_start_hour"`
		WorkEndHour         int  `yaml:"work_end_hour"`
		StrictWorkingHours  bool `yaml:"strict_working_hours"`
		MaxAttendees        int  `yaml:"max_attendees"`
		SlotDurationMinutes int  `yaml:"slot_duration_minutes"`
	} `yaml:"booking"`

	Rooms struct {
		CatalogPath         string `yaml:"catalog_path"`
		WatchIntervalSecond int    `yaml:"watch_interval_seconds"`
	} `yaml:"rooms"`

	Reminders struct {
		Enabled              bool    `yaml:"enabled"`
		CheckIntervalMinutes int     `yaml:"check_interval_minutes"`
		PerSecond            float64 `yaml:"per_second"`
	} `yaml:"reminders"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		ExportDir     string `yaml:"export_dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Admins []string `yaml:"admins"` // e-mail addresses
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "CampusRoomz"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Local"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ReadTimeoutSeconds <= 0 {
		c.HTTP.ReadTimeoutSeconds = 15
	}
	if c.HTTP.RateLimitPerSecond <= 0 {
		c.HTTP.RateLimitPerSecond = 10
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/campusroomz.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Booking.WorkStartHour == 0 && c.Booking.WorkEndHour == 0 {
		c.Booking.WorkStartHour = 9
		c.Booking.WorkEndHour = 18
	}
	if c.Booking.MaxAttendees <= 0 {
		c.Booking.MaxAttendees = 100
	}
	if c.Booking.SlotDurationMinutes <= 0 {
		c.Booking.SlotDurationMinutes = 30
	}
	if c.Rooms.CatalogPath == "" {
		c.Rooms.CatalogPath = "configs/rooms.yaml"
	}
	if c.Audit.ExportDir == "" {
		c.Audit.ExportDir = "data/exports"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Booking.WorkStartHour < 0 || c.Booking.WorkEndHour > 24 || c.Booking.WorkStartHour >= c.Booking.WorkEndHour {
		return fmt.Errorf("booking: invalid working hours %d-%d", c.Booking.WorkStartHour, c.Booking.WorkEndHour)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Location returns the time zone bookings are dated in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Clock returns the current time in the configured zone.
func (c *Config) Clock() func() time.Time {
	loc := c.Location()
	return func() time.Time { return time.Now().In(loc) }
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.CheckIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Reminders.CheckIntervalMinutes) * time.Minute
}

func (c *Config) AuditRetention() time.Duration {
	if c.Audit.RetentionDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

func (c *Config) RoomsWatchInterval() time.Duration {
	if c.Rooms.WatchIntervalSecond <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Rooms.WatchIntervalSecond) * time.Second
}

func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.Booking.SlotDurationMinutes) * time.Minute
}
