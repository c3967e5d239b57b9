package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARBOR_CONFIG", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, BackendFile, c.State.Backend)
	assert.Equal(t, "navtree-state", c.State.Key)
	assert.Equal(t, 500*time.Millisecond, c.State.Debounce)
	assert.Equal(t, "arbor:state:", c.State.Redis.Prefix)
	assert.Equal(t, "localhost:8080", c.HTTP.Addr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arbor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
state:
  backend: redis
  debounce: 2s
  redis:
    addr: cache:6379
    ttl: 1h
  compact: true
  encryption:
    key: c2VjcmV0
workspace:
  path: demo.yaml
`), 0o644))
	t.Setenv("ARBOR_STATE_REDIS_DB", "3")
	t.Setenv("ARBOR_HTTP_ADDR", ":9000")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, BackendRedis, c.State.Backend)
	assert.Equal(t, 2*time.Second, c.State.Debounce)
	assert.Equal(t, "cache:6379", c.State.Redis.Addr)
	assert.Equal(t, time.Hour, c.State.Redis.TTL)
	assert.Equal(t, 3, c.State.Redis.DB)
	assert.True(t, c.State.Compact)
	assert.Equal(t, "c2VjcmV0", c.State.Encryption.Key)
	assert.Equal(t, "demo.yaml", c.Workspace.Path)
	assert.Equal(t, ":9000", c.HTTP.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit file must exist")

	t.Chdir(t.TempDir())
	t.Setenv("ARBOR_CONFIG", "")
	t.Setenv("ARBOR_STATE_BACKEND", "floppy")
	_, err = Load("")
	assert.ErrorContains(t, err, "unknown backend")

	t.Setenv("ARBOR_STATE_BACKEND", "memory")
	t.Setenv("ARBOR_STATE_KEY", "")
	_, err = Load("")
	assert.ErrorContains(t, err, "state.key")
}
