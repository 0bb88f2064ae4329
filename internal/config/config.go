// Package config loads settings from the environment. Every entry point has
// its own struct so a tool never fails on variables it does not read.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Deployment environments accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// ErrInvalidEnv is returned when APP_ENV names an unknown environment.
var ErrInvalidEnv = errors.New("invalid APP_ENV")

type LogConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Config is read by cmd/api.
type Config struct {
	LogConfig
	AlertConfig

	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimits       RateLimitConfig
	Cache            CacheConfig

	// Comma separated; "*.example.org" allows every subdomain.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
	MaxRequestBodySize int64  `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	ResourcesFile string `env:"RESOURCES_FILE" envDefault:"resources.json"`

	// Argon2id PHC string. Empty disables the admin routes.
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	DefaultLanguage      string        `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	MapCenterLat         float64       `env:"MAP_CENTER_LAT" envDefault:"42.9634"`
	MapCenterLng         float64       `env:"MAP_CENTER_LNG" envDefault:"-85.6681"`
	MapZoom              int           `env:"MAP_ZOOM" envDefault:"13"`
	RealtimePushInterval time.Duration `env:"REALTIME_PUSH_INTERVAL" envDefault:"30s"`

	MapboxAccessToken string `env:"MAPBOX_ACCESS_TOKEN"`
	MapboxURL         string `env:"MAPBOX_API_URL" envDefault:"https://api.mapbox.com/directions/v5/mapbox"`
	DemandModelFile   string `env:"DEMAND_MODEL_FILE" envDefault:"models/demand_model.json"`
	WeatherAPIKey     string `env:"OPENWEATHERMAP_API_KEY"`
	WeatherURL        string `env:"OPENWEATHERMAP_API_URL" envDefault:"https://api.openweathermap.org/data/2.5/weather"`
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == EnvDevelopment }

func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }

// CORSOrigins splits CORSAllowedOrigins, dropping blanks.
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func (c *Config) validate() error {
	if !slices.Contains([]string{EnvDevelopment, EnvStaging, EnvProduction}, c.AppEnv) {
		return fmt.Errorf("%w: %q", ErrInvalidEnv, c.AppEnv)
	}
	return nil
}

// Load reads the API configuration. DATABASE_URL and REDIS_URL are required.
func Load() (*Config, error) {
	cfg, err := parse[Config]()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files, ".env" when none are given.
// Missing files are skipped; variables already in the process win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil, errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func parse[T any]() (*T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
