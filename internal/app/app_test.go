package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"behavior-backend/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ListenPort:        "0",
		APIBasePath:       "/api",
		DBDriver:          "sqlite",
		SQLitePath:        filepath.Join(dir, "app.db"),
		UploadDir:         filepath.Join(dir, "uploads"),
		DetectorAssetDir:  dir,
		DetectorURL:       "http://127.0.0.1:1",
		AllowedOrigins:    []string{"*"},
		JWTSecret:         "app-secret",
		JWTExpiry:         time.Hour,
		DispatchWorkers:   1,
		DispatchQueueSize: 4,
		AdminUsername:     "root",
		AdminPassword:     "root-pass",
		LogLevel:          "error",
	}
}

func TestNew_ServesLoginWithSeededAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"root","password":"root-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token"`)
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNew_MissingAdminPassword(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminPassword = ""

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.MetricsPort = "0"

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
