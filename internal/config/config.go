package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Match policies for the gallery.
const (
	MatchPolicyFirst   = "first"
	MatchPolicyNearest = "nearest"
	MatchPolicyIndexed = "indexed"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMariaDB  = "mariadb"
)

type Config struct {
	Gallery   GalleryConfig
	Camera    CameraConfig
	Embedding EmbeddingConfig
	Actuator  ActuatorConfig
	Schedule  ScheduleConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Web       WebConfig
}

type GalleryConfig struct {
	Dir         string  `env:"GALLERY_DIR" envDefault:"known_faces"`
	Tolerance   float64 `env:"GALLERY_TOLERANCE" envDefault:"0.5"`
	MatchPolicy string  `env:"GALLERY_MATCH_POLICY" envDefault:"first"`
	Metric      string  `env:"GALLERY_METRIC" envDefault:"cosine"`
	Cache       bool    `env:"GALLERY_CACHE" envDefault:"false"` // reuse embeddings from the postgres identity cache
}

type CameraConfig struct {
	URL      string        `env:"CAMERA_URL" envDefault:"http://192.168.100.6/capture"`
	Timeout  time.Duration `env:"CAMERA_TIMEOUT" envDefault:"10s"`
	Interval time.Duration `env:"CAMERA_INTERVAL" envDefault:"500ms"`
}

type EmbeddingConfig struct {
	URL string `env:"EMBEDDING_URL" envDefault:"http://localhost:8000"`
}

type ActuatorConfig struct {
	Port    string `env:"ACTUATOR_PORT"` // empty disables the actuator
	Baud    int    `env:"ACTUATOR_BAUD" envDefault:"115200"`
	Command string `env:"ACTUATOR_COMMAND" envDefault:"blink"`
}

type ScheduleConfig struct {
	Grace    time.Duration `env:"SCHEDULE_GRACE" envDefault:"15m"`
	Timezone string        `env:"SCHEDULE_TIMEZONE" envDefault:"Local"`
}

type DatabaseConfig struct {
	Driver        string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	URL           string `env:"DATABASE_URL" envDefault:"attendance.db"` // DSN, URL or sqlite file path depending on driver
	MaxOpenConns  int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns  int    `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	HNSWIndexPath string `env:"HNSW_INDEX_PATH"` // optional, if empty the gallery index is rebuilt on startup
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"` // empty means in-process attendance guard
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

type WebConfig struct {
	Host string `env:"WEB_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"WEB_PORT" envDefault:"8080"`

	// Localhost origins are always allowed.
	AllowedOrigins []string `env:"WEB_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that env parsing cannot.
func (c *Config) Validate() error {
	var errs []error

	if c.Gallery.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("GALLERY_TOLERANCE must be positive, got %v", c.Gallery.Tolerance))
	}
	switch c.Gallery.MatchPolicy {
	case MatchPolicyFirst, MatchPolicyNearest, MatchPolicyIndexed:
	default:
		errs = append(errs, fmt.Errorf("unknown GALLERY_MATCH_POLICY %q", c.Gallery.MatchPolicy))
	}
	switch c.Gallery.Metric {
	case "cosine", "euclidean":
	default:
		errs = append(errs, fmt.Errorf("unknown GALLERY_METRIC %q", c.Gallery.Metric))
	}
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverMariaDB:
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver))
	}
	if c.Database.Driver != DriverMemory && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Gallery.Cache && c.Database.Driver != DriverPostgres {
		errs = append(errs, errors.New("GALLERY_CACHE requires DATABASE_DRIVER=postgres"))
	}
	if c.Camera.Timeout <= 0 {
		errs = append(errs, errors.New("CAMERA_TIMEOUT must be positive"))
	}
	if c.Schedule.Grace < 0 {
		errs = append(errs, errors.New("SCHEDULE_GRACE must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" || strings.EqualFold(c.Schedule.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load SCHEDULE_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Addr returns the web listen address.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
