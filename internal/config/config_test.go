package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ListenPort)
	assert.Equal(t, "/api", cfg.APIBasePath)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "./uploads", cfg.UploadDir)
	assert.Equal(t, "http://localhost:5000", cfg.DetectorURL)
	assert.Equal(t, time.Duration(0), cfg.DetectorTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 4, cfg.DispatchWorkers)
	assert.Equal(t, 64, cfg.DispatchQueueSize)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LISTEN_PORT", "9090")
	t.Setenv("DETECTOR_URL", "http://detector:5000/")
	t.Setenv("DETECTOR_TIMEOUT", "30s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example,,")
	t.Setenv("DISPATCH_WORKERS", "8")
	t.Setenv("DB_DRIVER", "SQLite")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ListenPort)
	assert.Equal(t, "http://detector:5000", cfg.DetectorURL)
	assert.Equal(t, 30*time.Second, cfg.DetectorTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 8, cfg.DispatchWorkers)
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET: from-file\nUPLOAD_DIR: /data/uploads\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "/data/uploads", cfg.UploadDir)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:         "x",
			JWTExpiry:         time.Hour,
			DispatchWorkers:   1,
			DispatchQueueSize: 1,
			DBDriver:          "postgres",
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
		{"zero expiry", func(c *Config) { c.JWTExpiry = 0 }, "JWT_EXPIRY"},
		{"no workers", func(c *Config) { c.DispatchWorkers = 0 }, "DISPATCH_WORKERS"},
		{"no queue", func(c *Config) { c.DispatchQueueSize = 0 }, "DISPATCH_QUEUE_SIZE"},
		{"negative timeout", func(c *Config) { c.DetectorTimeout = -time.Second }, "DETECTOR_TIMEOUT"},
		{"bad driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
