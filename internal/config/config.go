package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Addr        string   `env:"TAGBLOG_ADDR"`
	Port        string   `env:"PORT"`
	DBDriver    string   `env:"TAGBLOG_DB_DRIVER" envDefault:"sqlite"`
	DBPath      string   `env:"TAGBLOG_DB" envDefault:"tagblog.db"`
	DatabaseURL string   `env:"DATABASE_URL"`
	BcryptCost  int      `env:"TAGBLOG_BCRYPT_COST" envDefault:"10"`
	CORSOrigins []string `env:"TAGBLOG_CORS_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel    string   `env:"TAGBLOG_LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"TAGBLOG_LOG_FORMAT" envDefault:"json"`
	RateLimits  RateLimits
}

type RateLimits struct {
	AuthPerMinute    int `env:"TAGBLOG_RL_AUTH_PER_MIN" envDefault:"20"`
	PostPerMinute    int `env:"TAGBLOG_RL_POST_PER_MIN" envDefault:"30"`
	CommentPerMinute int `env:"TAGBLOG_RL_COMMENT_PER_MIN" envDefault:"60"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads an optional .env file from the working directory, then the
// process environment. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses and checks the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Addr == "" {
		if cfg.Port != "" {
			cfg.Addr = ":" + cfg.Port
		} else {
			cfg.Addr = ":8080"
		}
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when TAGBLOG_DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown TAGBLOG_DB_DRIVER %q", c.DBDriver)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("TAGBLOG_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}
