package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unset clears key for the duration of the test and restores it afterwards.
func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/kelp")
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("STORAGE_BUCKET", "kelp")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)
	for _, k := range []string{"ADDR", "STORAGE_DRIVER", "UPLOAD_URL_TTL", "LIMITER_BACKEND", "MAX_OPEN_TRANSFERS", "LOG_LEVEL"} {
		unset(t, k)
	}

	cfg, err := Load("test", "", nil)
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.Addr)
	require.Equal(t, StorageS3, cfg.StorageDriver)
	require.Equal(t, time.Hour, cfg.UploadURLTTL)
	require.Equal(t, LimiterPostgres, cfg.LimiterBackend)
	require.Zero(t, cfg.MaxOpenTransfers)
	require.Equal(t, "info", cfg.Log().Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	validEnv(t)
	t.Setenv("ADDR", ":9000")

	cfg, err := Load("test", "", []string{"-addr", ":9443", "-dsn", "postgres://flag", "-dev"})
	require.NoError(t, err)
	require.Equal(t, ":9443", cfg.Addr)
	require.Equal(t, "postgres://flag", cfg.DatabaseURL)
	require.True(t, cfg.Dev)
}

func TestLoad_EnvFile(t *testing.T) {
	validEnv(t)
	unset(t, "STORAGE_REGION")
	t.Setenv("ADDR", ":7000")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_REGION=eu-central-1\nADDR=:6000\n"), 0o600))

	cfg, err := Load("test", path, nil)
	require.NoError(t, err)
	require.Equal(t, "eu-central-1", cfg.StorageRegion)
	require.Equal(t, ":7000", cfg.Addr, "process env wins over the file")
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	validEnv(t)
	_, err := Load("test", filepath.Join(t.TempDir(), "nope.env"), nil)
	require.NoError(t, err)
}

func TestLoad_BadValues(t *testing.T) {
	validEnv(t)
	t.Setenv("UPLOAD_URL_TTL", "soon")
	_, err := Load("test", "", nil)
	require.Error(t, err)
}

func TestLoad_UnknownFlag(t *testing.T) {
	validEnv(t)
	_, err := Load("test", "", []string{"-nope"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DatabaseURL:    "postgres://x",
			JWTSigningKey:  "k",
			StorageDriver:  StorageS3,
			StorageBucket:  "b",
			UploadURLTTL:   time.Hour,
			LimiterBackend: LimiterMemory,
			LimiterWindow:  time.Minute,
			LimiterMax:     10,
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no dsn", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"no key", func(c *Config) { c.JWTSigningKey = "" }, "JWT_SIGNING_KEY"},
		{"driver", func(c *Config) { c.StorageDriver = "gcs" }, "STORAGE_DRIVER"},
		{"minio endpoint", func(c *Config) { c.StorageDriver = StorageMinio }, "STORAGE_ENDPOINT"},
		{"ttl zero", func(c *Config) { c.UploadURLTTL = 0 }, "UPLOAD_URL_TTL"},
		{"ttl too long", func(c *Config) { c.UploadURLTTL = 8 * 24 * time.Hour }, "UPLOAD_URL_TTL"},
		{"negative cap", func(c *Config) { c.MaxOpenTransfers = -1 }, "MAX_OPEN_TRANSFERS"},
		{"backend", func(c *Config) { c.LimiterBackend = "memcached" }, "LIMITER_BACKEND"},
		{"limiter window", func(c *Config) { c.LimiterWindow = 0 }, "LIMITER_WINDOW"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	c := base()
	c.LimiterBackend, c.LimiterWindow = LimiterOff, 0
	require.NoError(t, c.Validate())
}

func TestStorageAndLogViews(t *testing.T) {
	c := Config{
		StorageEndpoint: "http://minio:9000", StorageRegion: "r", StorageBucket: "b",
		StorageAccessKey: "ak", StorageSecretKey: "sk",
		LogLevel: "debug", LogFile: "/tmp/kelp.log", LogMaxSizeMB: 5,
	}
	s := c.Storage()
	require.Equal(t, "http://minio:9000", s.Endpoint)
	require.Equal(t, "b", s.Bucket)
	require.Equal(t, "sk", s.SecretKey)

	l := c.Log()
	require.Equal(t, "debug", l.Level)
	require.Equal(t, 5, l.MaxSizeMB)
}
