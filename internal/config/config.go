// Package config loads CLI configuration from defaults, an optional YAML
// file and ARBOR_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported state backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	State     StateConfig     `mapstructure:"state"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StateConfig selects and configures the path state backend.
type StateConfig struct {
	Backend  string        `mapstructure:"backend"`
	Key      string        `mapstructure:"key"`
	Debounce time.Duration `mapstructure:"debounce"`
	File     FileConfig    `mapstructure:"file"`
	Redis    RedisConfig   `mapstructure:"redis"`
	SQLite   SQLiteConfig  `mapstructure:"sqlite"`
	// Compact drops default-valued entries before saving.
	Compact    bool             `mapstructure:"compact"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
}

// EncryptionConfig enables AES-256-GCM encryption of stored snapshots.
// Keys are base64 encoded 32 byte values.
type EncryptionConfig struct {
	Key          string   `mapstructure:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

// FileConfig holds the JSON file backend settings.
type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

// RedisConfig holds the redis backend settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	Lock     bool          `mapstructure:"lock"`
}

// SQLiteConfig holds the sqlite backend settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// WorkspaceConfig points at the demo workspace fixture.
type WorkspaceConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig holds the inspection server settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration. An explicit path must exist; otherwise
// ARBOR_CONFIG, ./.arbor/config.yaml and ~/.config/arbor/config.yaml are
// tried and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("log.level", "info")
	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.key", "navtree-state")
	v.SetDefault("state.debounce", 500*time.Millisecond)
	v.SetDefault("state.file.dir", filepath.Join(".arbor", "state"))
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.prefix", "arbor:state:")
	v.SetDefault("state.redis.ttl", time.Duration(0))
	v.SetDefault("state.redis.lock", false)
	v.SetDefault("state.sqlite.path", filepath.Join(".arbor", "state.db"))
	v.SetDefault("state.compact", false)
	v.SetDefault("state.encryption.key", "")
	v.SetDefault("state.encryption.fallback_keys", []string{})
	v.SetDefault("workspace.path", "")
	v.SetDefault("http.addr", "localhost:8080")

	v.SetConfigType("yaml")

	explicit := path != ""
	if !explicit {
		path = os.Getenv("ARBOR_CONFIG")
		explicit = path != ""
	}
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".arbor")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "arbor"))
		}
	}

	v.SetEnvPrefix("ARBOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	switch c.State.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("state.backend: unknown backend %q", c.State.Backend)
	}
	if c.State.Key == "" {
		return errors.New("state.key: must not be empty")
	}
	if c.State.Debounce < 0 {
		return errors.New("state.debounce: must not be negative")
	}
	if c.State.Encryption.Key == "" && len(c.State.Encryption.FallbackKeys) > 0 {
		return errors.New("state.encryption.fallback_keys: requires state.encryption.key")
	}
	return nil
}
