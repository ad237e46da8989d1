package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                     int      `env:"PORT" envDefault:"4001"`
	DatabaseURL              string   `env:"DATABASE_URL,required"`
	RedisURL                 string   `env:"REDIS_URL,required"`
	LogLevel                 string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins           []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	ChallengeTTLSeconds      int      `env:"CHALLENGE_TTL_SECONDS" envDefault:"600"`
	SessionMaxSeconds        int      `env:"SESSION_MAX_SECONDS" envDefault:"1800"`
	ChallengeRateLimitPerMin int      `env:"CHALLENGE_RATE_LIMIT_PER_MIN" envDefault:"20"`
	ConnectRateLimitPerMin   int      `env:"CONNECT_RATE_LIMIT_PER_MIN" envDefault:"30"`
	SendBufferSize           int      `env:"SEND_BUFFER_SIZE" envDefault:"64"`
	SeedRacesOnStart         bool     `env:"SEED_RACES_ON_START" envDefault:"false"`
}

func (c *Config) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLSeconds) * time.Second
}

func (c *Config) SessionMaxDuration() time.Duration {
	return time.Duration(c.SessionMaxSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.ChallengeTTLSeconds < 0 {
		return fmt.Errorf("CHALLENGE_TTL_SECONDS must not be negative")
	}
	if c.SessionMaxSeconds < 0 {
		return fmt.Errorf("SESSION_MAX_SECONDS must not be negative")
	}
	if c.SendBufferSize < 1 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be at least 1")
	}

	if isProduction {
		if len(c.AllowedOrigins) == 0 {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: websocket origin checks disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
