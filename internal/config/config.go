// Package config loads service configuration from environment variables
// and an optional YAML file.
//
// Every key can be set via the APIMAN_ environment prefix, with dots
// replaced by underscores (e.g. redis.addr -> APIMAN_REDIS_ADDR).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `mapstructure:"listen"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// DefaultQuota is the ceiling applied to APIs without an explicit
	// quota key.
	DefaultQuota int64 `mapstructure:"default_quota"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the shared key-value store connection settings.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	PoolSize  int           `mapstructure:"pool_size"`
}

// Load reads configuration from the optional file at path (empty means
// no file) and the environment, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen", ":8080")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("default_quota", 1000)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("redis.op_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 0)

	v.SetEnvPrefix("APIMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DefaultQuota <= 0 {
		return nil, fmt.Errorf("default_quota must be positive, got %d", cfg.DefaultQuota)
	}
	if cfg.Redis.OpTimeout <= 0 {
		return nil, fmt.Errorf("redis.op_timeout must be positive, got %s", cfg.Redis.OpTimeout)
	}

	return &cfg, nil
}
