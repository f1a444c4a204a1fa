package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RENDER_DPI", "")
	t.Setenv("JOBS_ENABLED", "")
	t.Setenv("STORAGE_BACKEND", "")

	cfg := FromEnv()
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(64), cfg.Server.MaxUploadMB)
	assert.Equal(t, 150, cfg.Render.DPI)
	assert.False(t, cfg.Jobs.Enabled)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.ResultTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JOBS_ENABLED", "yes")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("QUEUE_POLL_INTERVAL", "250ms")
	t.Setenv("RENDER_COLOR", "GRAY")

	cfg := FromEnv()
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Jobs.Enabled)
	assert.Equal(t, 2, cfg.Jobs.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Jobs.PollInterval)
	assert.Equal(t, "gray", cfg.Render.ColorMode)
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MAX_INFLIGHT_PER_TOOL=7\n"), 0o644))
	t.Setenv("MAX_INFLIGHT_PER_TOOL", "")
	os.Unsetenv("MAX_INFLIGHT_PER_TOOL")

	cfg := Load(path)
	assert.Equal(t, 7, cfg.Server.MaxInflight)
}
