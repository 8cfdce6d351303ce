package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, 2*time.Hour, cfg.Room.TTL)
	assert.Equal(t, "insecure", cfg.Auth.Mode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Cluster.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Cluster.PublishWait)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "beacon", cfg.Audit.Database)
	assert.Equal(t, "zap", cfg.Logging.Logger)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := []byte(`
http:
  port: 9090
room:
  ttl: 30m
auth:
  mode: hmac
  secret: shhh
cluster:
  enabled: true
  instance_id: node-1
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(9090), cfg.HTTP.Port)
	assert.Equal(t, 30*time.Minute, cfg.Room.TTL)
	assert.Equal(t, "hmac", cfg.Auth.Mode)
	assert.Equal(t, "shhh", cfg.Auth.Secret)
	assert.True(t, cfg.Cluster.Enabled)
	assert.Equal(t, "node-1", cfg.Cluster.InstanceID)

	// Unset keys fall back to defaults.
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("ROOM_TTL_MINUTES", "45")
	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("CLUSTER_ENABLED", "true")
	t.Setenv("INSTANCE_ID", "node-7")
	t.Setenv("LOGGER", "zerolog")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint16(7070), cfg.HTTP.Port)
	assert.Equal(t, 45*time.Minute, cfg.Room.TTL)
	assert.Equal(t, "hmac", cfg.Auth.Mode)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Cluster.Enabled)
	assert.Equal(t, "node-7", cfg.Cluster.InstanceID)
	assert.Equal(t, "zerolog", cfg.Logging.Logger)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
