// Package config loads the K-line service's configuration from
// application.yaml with environment variables layered on top: database
// connection parameters, HTTP server settings, vendor transport and
// pacing knobs, and the cache tiers.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DatabaseConfig holds the Postgres connection parameters.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConnections    int           `mapstructure:"max_open_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	MaxConnectionLifeTime time.Duration `mapstructure:"max_connection_lifetime"`
}

// ServerConfig is the HTTP wrapper's listen configuration.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BulkVendorConfig holds the bulk-history adapter's session credentials and
// rate-limit tier.
type BulkVendorConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// IntradayVendorConfig holds the intraday adapter's transport settings.
type IntradayVendorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BackfillConfig holds backfill settings. cmd/backfill reads only
// DefaultStart (the window start when --start-date is not given); its
// --delay and --relogin-interval flags carry their own defaults and do
// not read Delay or ReloginInterval.
type BackfillConfig struct {
	Delay           time.Duration `mapstructure:"delay"`
	ReloginInterval int           `mapstructure:"relogin_interval"`
	DefaultStart    string        `mapstructure:"default_start"`
}

// CacheConfig holds the redis tier's connection settings for the two-tier
// registry cache (pkg/cache); an empty Addr disables the redis
// tier and the cache falls back to in-process memoisation only.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	InMemTTL      time.Duration `mapstructure:"inmem_ttl"`
	InMemCleanup  time.Duration `mapstructure:"inmem_cleanup"`
}

// Config is the service's full configuration tree.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Database DatabaseConfig       `mapstructure:"database"`
	Bulk     BulkVendorConfig     `mapstructure:"bulk_vendor"`
	Intraday IntradayVendorConfig `mapstructure:"intraday_vendor"`
	Backfill BackfillConfig       `mapstructure:"backfill"`
	Cache    CacheConfig          `mapstructure:"cache"`
	LogDir   string               `mapstructure:"log_dir"`
	LogLevel string               `mapstructure:"log_level"`
}

// defaults applied before the config file/environment are read.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "kline")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_connections", 20)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.max_connection_lifetime", time.Hour)

	v.SetDefault("bulk_vendor.rate_per_second", 2.0)
	v.SetDefault("bulk_vendor.burst", 1)
	v.SetDefault("bulk_vendor.timeout", 30*time.Second)

	v.SetDefault("intraday_vendor.timeout", 30*time.Second)

	v.SetDefault("backfill.delay", 500*time.Millisecond)
	v.SetDefault("backfill.relogin_interval", 300)

	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")

	v.SetDefault("cache.inmem_ttl", 15*time.Minute)
	v.SetDefault("cache.inmem_cleanup", 30*time.Minute)
	v.SetDefault("cache.redis_db", 0)
}

// Load reads application.yaml (if present) and layers environment
// variables on top (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME and
// the bulk vendor credentials), the env vars winning on conflict.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, "database.host", "DB_HOST")
	bindEnv(v, "database.port", "DB_PORT")
	bindEnv(v, "database.user", "DB_USER")
	bindEnv(v, "database.password", "DB_PASSWORD")
	bindEnv(v, "database.name", "DB_NAME")
	bindEnv(v, "bulk_vendor.username", "BULK_VENDOR_USERNAME")
	bindEnv(v, "bulk_vendor.password", "BULK_VENDOR_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling config")
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	_ = v.BindEnv(key, env)
}
