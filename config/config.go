// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration
type Config struct {
	Server Server
	Redis  Redis
	Auth   Auth
}

// Server configures the HTTP listener
type Server struct {
	Addr        string `env:"SERVER_ADDR" envDefault:":9000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Production reports whether the service runs in production mode
func (s Server) Production() bool {
	return s.Environment == "production"
}

// Redis configures the shared store backend. An empty URL selects the
// in-memory adapters.
type Redis struct {
	URL string `env:"REDIS_URL" envDefault:""`
}

// Auth configures the authentication core
type Auth struct {
	ChainID              int64         `env:"AUTH_CHAIN_ID" envDefault:"480"`
	Domain               string        `env:"AUTH_DOMAIN" envDefault:"pool.example.org"`
	URI                  string        `env:"AUTH_URI" envDefault:"https://pool.example.org"`
	Statement            string        `env:"AUTH_STATEMENT" envDefault:"Sign in to the prize pool."`
	NonceTTL             time.Duration `env:"AUTH_NONCE_TTL" envDefault:"10m"`
	SessionTTL           time.Duration `env:"AUTH_SESSION_TTL" envDefault:"24h"`
	MaxVerifyAttempts    int           `env:"AUTH_MAX_VERIFY_ATTEMPTS" envDefault:"10"`
	VerifyWindow         time.Duration `env:"AUTH_VERIFY_WINDOW" envDefault:"15m"`
	MaxAuthRetries       int           `env:"AUTH_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay       time.Duration `env:"AUTH_RETRY_BASE_DELAY" envDefault:"1s"`
	SweepInterval        time.Duration `env:"AUTH_SWEEP_INTERVAL" envDefault:"5m"`
	SingleSessionPerAddr bool          `env:"AUTH_SINGLE_SESSION_PER_ADDRESS" envDefault:"false"`
}

// Load reads configuration from the environment, honoring a local .env file
func Load() (*Config, error) {
	// Missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
