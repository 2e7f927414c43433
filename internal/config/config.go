package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read once at startup from the environment.
type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL,required,notEmpty"`
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:":8080"`
	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`

	Admin AdminSeed `envPrefix:"ADMIN_"`
}

// AdminSeed describes the privileged account created on first start. An
// empty Email disables seeding.
type AdminSeed struct {
	Email     string `env:"EMAIL"`
	Username  string `env:"USERNAME" envDefault:"admin"`
	Password  string `env:"PASSWORD"`
	FullName  string `env:"FULLNAME" envDefault:"Library"`
	Surname   string `env:"SURNAME" envDefault:"Admin"`
	OrgNumber string `env:"ORG_NUMBER"`
}

func (a AdminSeed) Enabled() bool { return a.Email != "" }

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Admin.Enabled() && cfg.Admin.Password == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto slog levels, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
