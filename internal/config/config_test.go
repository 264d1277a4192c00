package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "STORE_BACKEND", "LOCK_BACKEND", "LOCK_TTL", "MAX_ATTEMPTS", "EVENTS_REDIS"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "memory", c.StoreBackend)
	assert.Equal(t, "memory", c.LockBackend)
	assert.False(t, c.EventsRedis)
	assert.Equal(t, 5*time.Second, c.LockTTL)
	assert.Equal(t, 8, c.MaxAttempts)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TTL", "750ms")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("EVENTS_REDIS", "true")
	t.Setenv("SHUTDOWN_TIMEOUT", "nonsense")
	t.Setenv("GAME_SECRET", "s3cret")

	c := FromEnv()
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "redis", c.LockBackend)
	assert.Equal(t, 750*time.Millisecond, c.LockTTL)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.True(t, c.EventsRedis)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.Equal(t, "s3cret", c.GameSecret)
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE_BACKEND=postgres\nPORT=7000\n"), 0o600))
	t.Setenv("PORT", "9100")
	t.Setenv("STORE_BACKEND", "")
	require.NoError(t, os.Unsetenv("STORE_BACKEND"))

	c := Load(path)
	assert.Equal(t, "9100", c.Port)
	assert.Equal(t, "postgres", c.StoreBackend)
}
