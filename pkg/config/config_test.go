package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/util"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newtcfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 1, cfg.ConnectRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "config_backups", cfg.Store.Dir)
	assert.Empty(t, cfg.Audit.Path)
	assert.Empty(t, cfg.File)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `concurrency: 12
connect_retries: 3
retry_backoff: 500ms
command_timeout: 2m
store:
  backend: redis
  redis_addr: 10.0.0.10:6379
  redis_db: 4
audit:
  path: /var/log/newtcfg/audit.log
  max_backups: 2
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 2*time.Minute, cfg.CommandTimeout)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "10.0.0.10:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 4, cfg.Store.RedisDB)
	assert.Equal(t, "/var/log/newtcfg/audit.log", cfg.Audit.Path)
	assert.Equal(t, 2, cfg.Audit.MaxBackups)
	assert.Equal(t, "json", cfg.Log.Format)

	opts := cfg.SessionOptions()
	assert.Equal(t, 3, opts.ConnectRetries)
	assert.Equal(t, 500*time.Millisecond, opts.RetryBackoff)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 2*time.Minute, opts.CommandTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "concurrency: 12\n")
	t.Setenv("NEWTCFG_CONCURRENCY", "3")
	t.Setenv("NEWTCFG_STORE_BACKEND", "memory")
	t.Setenv("NEWTCFG_CONNECT_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `concurrency: 0
connect_retries: -1
store:
  backend: s3
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	ce, ok := err.(*util.ConfigError)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, path, ce.Source)
	assert.Len(t, ce.Errors, 3)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{Store: StoreConfig{Backend: BackendFile, Dir: t.TempDir()}}
	store, closeFn, err := cfg.OpenStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &snapshot.FileStore{}, store)
	assert.NoError(t, closeFn())

	cfg = &Config{Store: StoreConfig{Backend: BackendMemory}}
	store, _, err = cfg.OpenStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &snapshot.MemoryStore{}, store)

	cfg = &Config{Store: StoreConfig{Backend: "s3"}}
	_, closeFn, err = cfg.OpenStore(ctx)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)
	assert.NotNil(t, closeFn)
}

func TestOpenAudit(t *testing.T) {
	cfg := &Config{}
	logger, err := cfg.OpenAudit()
	require.NoError(t, err)
	assert.Nil(t, logger)

	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit", "audit.log")
	logger, err = cfg.OpenAudit()
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}
