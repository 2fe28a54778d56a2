package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/rpattn/querykit/internal/db"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds all configuration for querykit.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   db.Config        `mapstructure:"database"`
	Store      StoreConfig      `mapstructure:"store"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// StoreConfig selects the entity store and where in-memory data comes from.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SchemaPath string `mapstructure:"schema_path"`
	SeedPath   string `mapstructure:"seed_path"`
}

// PaginationConfig bounds page sizes. The default page size is fixed.
type PaginationConfig struct {
	MaxItemsPerPage int `mapstructure:"max_items_per_page"`
}

// CatalogConfig sizes the field catalog cache.
type CatalogConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives logs through a rotating writer.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads config.yaml from configPath (when present), applies QUERYKIT_*
// environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUERYKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.schema_path", "")
	v.SetDefault("store.seed_path", "")

	v.SetDefault("pagination.max_items_per_page", 500)

	v.SetDefault("catalog.cache_size", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
}

// Validate checks every section and reports all problems together.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("server.addr must not be empty"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("server timeouts must be >= 0"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			result = multierror.Append(result, fmt.Errorf("database.host must not be empty"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("database.port must be between 1 and 65535"))
		}
		if c.Database.DBName == "" {
			result = multierror.Append(result, fmt.Errorf("database.dbname must not be empty"))
		}
		if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
			result = multierror.Append(result, fmt.Errorf("database connection limits must be >= 0"))
		}
		if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
			result = multierror.Append(result, fmt.Errorf("database.min_conns (%d) must not exceed database.max_conns (%d)", c.Database.MinConns, c.Database.MaxConns))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("store.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.Store.Driver))
	}

	if c.Pagination.MaxItemsPerPage < 0 {
		result = multierror.Append(result, fmt.Errorf("pagination.max_items_per_page must be >= 0"))
	}
	if c.Catalog.CacheSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("catalog.cache_size must be greater than 0"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.level must be one of debug, info, warn, error"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.format must be text or json"))
	}

	return result.ErrorOrNil()
}
