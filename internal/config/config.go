// Package config loads process configuration from the environment, an optional .env file
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kelpcommercial/kelp-transfers/internal/logging"
	"github.com/kelpcommercial/kelp-transfers/internal/storage"
)

// Storage drivers.
const (
	StorageS3    = "s3"
	StorageMinio = "minio"
)

// Limiter backends.
const (
	LimiterPostgres = "postgres"
	LimiterRedis    = "redis"
	LimiterMemory   = "memory"
	LimiterOff      = "off"
)

type Config struct {
	Addr          string `envconfig:"ADDR" default:":8443"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY"`
	TLSCert       string `envconfig:"TLS_CERT" default:"cert.pem"`
	TLSKey        string `envconfig:"TLS_KEY" default:"key.pem"`
	Dev           bool   `envconfig:"DEV" default:"false"`

	StorageDriver    string `envconfig:"STORAGE_DRIVER" default:"s3"`
	StorageEndpoint  string `envconfig:"STORAGE_ENDPOINT"`
	StorageRegion    string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	StorageBucket    string `envconfig:"STORAGE_BUCKET"`
	StorageAccessKey string `envconfig:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `envconfig:"STORAGE_SECRET_KEY"`

	UploadURLTTL     time.Duration `envconfig:"UPLOAD_URL_TTL" default:"1h"`
	MaxOpenTransfers int           `envconfig:"MAX_OPEN_TRANSFERS" default:"0"`

	LimiterBackend string        `envconfig:"LIMITER_BACKEND" default:"postgres"`
	LimiterWindow  time.Duration `envconfig:"LIMITER_WINDOW" default:"1m"`
	LimiterMax     int           `envconfig:"LIMITER_MAX" default:"120"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"7"`
	LogCompress   bool   `envconfig:"LOG_COMPRESS" default:"false"`
}

// Load reads envFile (missing is fine), then the environment, then flags from args.
// Variables already set in the environment win over the file.
func Load(name, envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fset.StringVar(&cfg.DatabaseURL, "dsn", cfg.DatabaseURL, "PostgreSQL DSN")
	fset.StringVar(&cfg.JWTSigningKey, "jwt-key", cfg.JWTSigningKey, "HS256 signing key")
	fset.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate (PEM)")
	fset.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key (PEM)")
	fset.BoolVar(&cfg.Dev, "dev", cfg.Dev, "enable server reflection (dev only)")
	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return &cfg, nil
}

// Validate checks everything the server needs before it starts.
func (c *Config) Validate() error {
	var problems []error
	if c.DatabaseURL == "" {
		problems = append(problems, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSigningKey == "" {
		problems = append(problems, errors.New("JWT_SIGNING_KEY is required"))
	}
	switch c.StorageDriver {
	case StorageS3, StorageMinio:
	default:
		problems = append(problems, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.StorageBucket == "" {
		problems = append(problems, errors.New("STORAGE_BUCKET is required"))
	}
	if c.StorageDriver == StorageMinio && c.StorageEndpoint == "" {
		problems = append(problems, errors.New("STORAGE_ENDPOINT is required for minio"))
	}
	if c.UploadURLTTL <= 0 || c.UploadURLTTL > storage.MaxURLTTL {
		problems = append(problems, fmt.Errorf("UPLOAD_URL_TTL must be in (0, %s]", storage.MaxURLTTL))
	}
	if c.MaxOpenTransfers < 0 {
		problems = append(problems, errors.New("MAX_OPEN_TRANSFERS must not be negative"))
	}
	switch c.LimiterBackend {
	case LimiterOff:
	case LimiterPostgres, LimiterRedis, LimiterMemory:
		if c.LimiterWindow <= 0 || c.LimiterMax <= 0 {
			problems = append(problems, errors.New("LIMITER_WINDOW and LIMITER_MAX must be positive"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown LIMITER_BACKEND %q", c.LimiterBackend))
	}
	return errors.Join(problems...)
}

// Storage returns the object store settings.
func (c *Config) Storage() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.StorageEndpoint,
		Region:    c.StorageRegion,
		Bucket:    c.StorageBucket,
		AccessKey: c.StorageAccessKey,
		SecretKey: c.StorageSecretKey,
	}
}

// Log returns the logger settings.
func (c *Config) Log() logging.Options {
	return logging.Options{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   c.LogCompress,
	}
}
