package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type InstrumentationConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RetentionDays   int     `mapstructure:"retention_days"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
	BufferSize      int     `mapstructure:"buffer_size"`
	FlushIntervalMs int     `mapstructure:"flush_interval_ms"`
}

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Storage         StorageConfig         `mapstructure:"storage"`
	Cache           CacheConfig           `mapstructure:"cache"`
	Collaborator    CollaboratorConfig    `mapstructure:"collaborator"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
}

// StorageConfig points at the directory holding persisted list filters.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalPath string `mapstructure:"local_path"`
}

// CacheConfig controls freshness and eviction of cached entity data.
type CacheConfig struct {
	StaleTime time.Duration `mapstructure:"stale_time"`
	GCTime    time.Duration `mapstructure:"gc_time"`
	// TimeFormat is "iso" (RFC3339 strings) or "time" (time.Time values).
	TimeFormat string `mapstructure:"time_format"`
}

// CollaboratorConfig selects where entity reads and writes are sent.
// Mode "local" uses the SQL store in-process; "http" forwards to BaseURL.
type CollaboratorConfig struct {
	Mode    string        `mapstructure:"mode"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// IsRemote reports whether entity traffic goes to an upstream HTTP API.
func (c CollaboratorConfig) IsRemote() bool {
	return c.Mode == "http"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "coach")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_path", "./data/filters")
	v.SetDefault("cache.stale_time", time.Minute)
	v.SetDefault("cache.gc_time", 5*time.Minute)
	v.SetDefault("cache.time_format", "iso")
	v.SetDefault("collaborator.mode", "local")
	v.SetDefault("collaborator.timeout", 10*time.Second)
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.retention_days", 7)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
	v.SetDefault("instrumentation.buffer_size", 500)
	v.SetDefault("instrumentation.flush_interval_ms", 100)
}

// Load reads app.yaml from the working directory (or two levels up) and
// overlays environment variables. A missing config file is not an error;
// defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")
	return load(v)
}

// LoadFile reads the given config file instead of searching for app.yaml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Collaborator.IsRemote() && cfg.Collaborator.BaseURL == "" {
		return nil, fmt.Errorf("collaborator.base_url is required when collaborator.mode is http")
	}
	if cfg.Cache.TimeFormat != "iso" && cfg.Cache.TimeFormat != "time" {
		return nil, fmt.Errorf("cache.time_format must be iso or time, got %q", cfg.Cache.TimeFormat)
	}

	return &cfg, nil
}
