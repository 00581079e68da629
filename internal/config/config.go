// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. INVENTAR_ADDR.
const Prefix = "INVENTAR"

// Storage providers.
const (
	StorageSQLite = "sqlite"
	StorageGCS    = "gcs"
)

// Config holds the server configuration.
type Config struct {
	Addr          string `envconfig:"ADDR" default:":8080"`
	DBPath        string `envconfig:"DB_PATH" default:"inventar.sqlite3"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	TokenTTLDays  int    `envconfig:"TOKEN_TTL_DAYS" default:"14"`

	StorageProvider      string `envconfig:"STORAGE_PROVIDER" default:"sqlite"`
	GCSBucket            string `envconfig:"GCS_BUCKET"`
	GCSCredentialsJSON   string `envconfig:"GCS_CREDENTIALS_JSON"`
	StorageAccessBaseURL string `envconfig:"STORAGE_ACCESS_BASE_URL"`

	// RedisURL shares finalization locks between replicas; without it locks
	// only cover one process.
	RedisURL      string        `envconfig:"REDIS_URL"`
	ChromeBin     string        `envconfig:"CHROME_BIN"`
	RenderTimeout time.Duration `envconfig:"RENDER_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogPath   string `envconfig:"LOG_PATH"`
}

// Load reads envFile (if it exists) into the environment, then processes
// INVENTAR_* variables. Variables already set take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.StorageProvider {
	case StorageSQLite:
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("%s_GCS_BUCKET is required for gcs storage", Prefix)
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.StorageProvider)
	}
	if c.TokenTTLDays < 1 {
		return fmt.Errorf("%s_TOKEN_TTL_DAYS must be at least 1", Prefix)
	}
	return nil
}

// TokenTTL is the lifetime of public signing links.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLDays) * 24 * time.Hour
}
