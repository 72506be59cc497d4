package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	require.Equal(t, "0.0.0.0:8081", cfg.Server.WithPort(cfg.Store.Port).Address())
	require.Equal(t, 20, cfg.Console.PageSize)
	require.Equal(t, 30*time.Minute, cfg.Console.SessionTTL)
	require.Equal(t, 30*time.Second, cfg.Console.UnreadPollInterval)
	require.Equal(t, "notifications", cfg.Queue.Name)
	require.True(t, cfg.Queue.Enabled)
	require.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("CONSOLE_PAGE_SIZE", "50")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Console.PageSize)
	require.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	require.Equal(t, 2*time.Second, cfg.Store.Timeout)
}

func TestLoad_RejectsPageSize(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("CONSOLE_PAGE_SIZE", "500")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\nQUEUE_CONCURRENCY=3\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("QUEUE_CONCURRENCY")
	})

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
	require.Equal(t, 3, cfg.Queue.Concurrency)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inkdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
auth:
  jwt_secret: from-file
console:
  page_size: 10
queue:
  weights: "notifications=3"
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "from-file", cfg.Auth.JWTSecret)
	require.Equal(t, 10, cfg.Console.PageSize)
	require.Equal(t, "notifications=3", cfg.Queue.Weights)
	require.Equal(t, 15*time.Second, cfg.Store.Timeout)
}
