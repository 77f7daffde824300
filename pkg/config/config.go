// Package config loads engine settings from a YAML file, NEWTCFG_* environment
// variables, and built-in defaults, in that order of precedence (environment
// first).
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newtron-network/newtcfg/pkg/audit"
	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/session"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// EnvPrefix prefixes environment overrides: NEWTCFG_CONCURRENCY,
// NEWTCFG_STORE_BACKEND, and so on.
const EnvPrefix = "NEWTCFG"

// Snapshot store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds engine settings.
type Config struct {
	Concurrency    int           `mapstructure:"concurrency"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	Store StoreConfig `mapstructure:"store"`
	Audit AuditConfig `mapstructure:"audit"`
	Log   LogConfig   `mapstructure:"log"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// StoreConfig selects and configures the snapshot store.
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// AuditConfig configures the audit trail. An empty Path disables it.
type AuditConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int64  `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", batch.DefaultConcurrency)
	v.SetDefault("connect_retries", 1)
	v.SetDefault("retry_backoff", "2s")
	v.SetDefault("connect_timeout", "30s")
	v.SetDefault("command_timeout", "60s")

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.dir", "config_backups")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)

	v.SetDefault("audit.path", "")
	v.SetDefault("audit.max_size", 10*1024*1024)
	v.SetDefault("audit.max_backups", 5)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. With an empty path it looks for newtcfg.yaml in
// the working directory, ~/.newtcfg and /etc/newtcfg; finding none is not an
// error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("newtcfg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".newtcfg"))
		}
		v.AddConfigPath("/etc/newtcfg")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and backend settings.
func (c *Config) Validate() error {
	source := c.File
	if source == "" {
		source = "config"
	}
	vb := util.NewValidationBuilder(source)
	vb.Add(c.Concurrency >= 1, fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency))
	vb.Add(c.ConnectRetries >= 0, fmt.Sprintf("connect_retries must not be negative, got %d", c.ConnectRetries))
	vb.Add(c.RetryBackoff >= 0, "retry_backoff must not be negative")
	vb.Add(c.ConnectTimeout >= 0, "connect_timeout must not be negative")
	vb.Add(c.CommandTimeout >= 0, "command_timeout must not be negative")

	switch c.Store.Backend {
	case BackendFile:
		vb.Add(c.Store.Dir != "", "store.dir is required for the file backend")
	case BackendRedis:
		vb.Add(c.Store.RedisAddr != "", "store.redis_addr is required for the redis backend")
	case BackendMemory:
	default:
		vb.AddErrorf("unknown store.backend %q (valid: file, redis, memory)", c.Store.Backend)
	}

	vb.Add(c.Audit.MaxSize >= 0, "audit.max_size must not be negative")
	vb.Add(c.Audit.MaxBackups >= 0, "audit.max_backups must not be negative")
	return vb.Build()
}

// SessionOptions returns the session manager options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		ConnectRetries: c.ConnectRetries,
		RetryBackoff:   c.RetryBackoff,
		ConnectTimeout: c.ConnectTimeout,
		CommandTimeout: c.CommandTimeout,
	}
}

// OpenStore opens the configured snapshot store. The returned close function
// is never nil.
func (c *Config) OpenStore(ctx context.Context) (snapshot.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Store.Backend {
	case BackendFile:
		return snapshot.NewFileStore(c.Store.Dir), noop, nil
	case BackendMemory:
		return snapshot.NewMemoryStore(), noop, nil
	case BackendRedis:
		rs := snapshot.NewRedisStore(c.Store.RedisAddr, c.Store.RedisDB)
		if err := rs.Connect(ctx); err != nil {
			rs.Close()
			return nil, noop, fmt.Errorf("connecting to redis at %s: %w", c.Store.RedisAddr, err)
		}
		return rs, rs.Close, nil
	}
	return nil, noop, util.NewConfigError("config", fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
}

// OpenAudit opens the audit log, or returns nil when auditing is disabled.
func (c *Config) OpenAudit() (*audit.FileLogger, error) {
	if c.Audit.Path == "" {
		return nil, nil
	}
	return audit.NewFileLogger(c.Audit.Path, audit.RotationConfig{
		MaxSize:    c.Audit.MaxSize,
		MaxBackups: c.Audit.MaxBackups,
	})
}

// ApplyLogging configures the process logger.
func (c *Config) ApplyLogging() error {
	if err := util.SetLogLevel(c.Log.Level); err != nil {
		return err
	}
	if strings.EqualFold(c.Log.Format, "json") {
		util.SetJSONFormat()
	}
	return nil
}
