package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 3, cfg.Transport.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Transport.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Transport.MaxDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.Overlay.Debounce)
	assert.Equal(t, time.Duration(0), cfg.Overlay.CacheTTL)
	assert.Equal(t, 300, cfg.Overlay.AvatarTimeoutSeconds)
	assert.Equal(t, 15*time.Second, cfg.SSE.HeartbeatInterval)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 168*time.Hour, cfg.Archive().Retention)
	assert.True(t, cfg.DurableEnabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9000
  instance_id: node-a
redis:
  address: memory
overlay:
  debounce: 50ms
  avatar_timeout_seconds: 120
database:
  driver: none
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("REDIS_ADDRESS", "redis:6380")

	cfg, v, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.NotEmpty(t, v.ConfigFileUsed())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "node-a", cfg.Manager().InstanceID)
	assert.Equal(t, "redis:6380", cfg.PubSub().Address)
	assert.Equal(t, 50*time.Millisecond, cfg.Store().Debounce)
	assert.Equal(t, 120, cfg.Store().DefaultAvatarTimeoutSeconds)
	assert.False(t, cfg.DurableEnabled())
	assert.Equal(t, "debug", cfg.Log.Level)
}
