// Package am loads strata configuration.
//
// Sources are merged in precedence order (lowest first): built-in defaults,
// ~/.strata/am.toml, the nearest strata.toml or am.toml found walking up from
// the working directory, then STRATA_* environment variables.
package am

import "time"

// Config represents the strata configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database"`
	Storage  StorageConfig  `mapstructure:"storage" toml:"storage" yaml:"storage"`
	Autosave AutosaveConfig `mapstructure:"autosave" toml:"autosave" yaml:"autosave"`
	Canvas   CanvasConfig   `mapstructure:"canvas" toml:"canvas" yaml:"canvas"`
	Catalog  CatalogConfig  `mapstructure:"catalog" toml:"catalog" yaml:"catalog"`
	Identity IdentityConfig `mapstructure:"identity" toml:"identity" yaml:"identity"`
	Server   ServerConfig   `mapstructure:"server" toml:"server" yaml:"server"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// StorageConfig selects where canvas snapshots are kept
type StorageConfig struct {
	Backend  string         `mapstructure:"backend" toml:"backend" yaml:"backend"` // sqlite, file, memory, dynamodb
	Dir      string         `mapstructure:"dir" toml:"dir" yaml:"dir"`             // file backend directory
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb" toml:"dynamodb" yaml:"dynamodb"`
}

// DynamoDBConfig configures the dynamodb backend
type DynamoDBConfig struct {
	Table    string `mapstructure:"table" toml:"table" yaml:"table"`
	Region   string `mapstructure:"region" toml:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" toml:"endpoint" yaml:"endpoint"` // empty = AWS default, set for DynamoDB Local
}

// AutosaveConfig configures background saving after each mutation
type AutosaveConfig struct {
	Enabled               bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	IntervalMS            int    `mapstructure:"interval_ms" toml:"interval_ms" yaml:"interval_ms"`                                     // minimum gap between writes, 0 = unthrottled
	BreakerFailures       uint32 `mapstructure:"breaker_failures" toml:"breaker_failures" yaml:"breaker_failures"`                      // consecutive failures before pausing writes, 0 = never
	BreakerTimeoutSeconds int    `mapstructure:"breaker_timeout_seconds" toml:"breaker_timeout_seconds" yaml:"breaker_timeout_seconds"` // pause length once tripped
}

// Interval returns IntervalMS as a duration.
func (a AutosaveConfig) Interval() time.Duration {
	return time.Duration(a.IntervalMS) * time.Millisecond
}

// BreakerTimeout returns BreakerTimeoutSeconds as a duration.
func (a AutosaveConfig) BreakerTimeout() time.Duration {
	return time.Duration(a.BreakerTimeoutSeconds) * time.Second
}

// CanvasConfig configures the root canvas and node placement
type CanvasConfig struct {
	RootTitle      string  `mapstructure:"root_title" toml:"root_title" yaml:"root_title"`
	Jitter         float64 `mapstructure:"jitter" toml:"jitter" yaml:"jitter"` // max placement offset from viewport centre
	ViewportWidth  float64 `mapstructure:"viewport_width" toml:"viewport_width" yaml:"viewport_width"`
	ViewportHeight float64 `mapstructure:"viewport_height" toml:"viewport_height" yaml:"viewport_height"`
}

// CatalogConfig configures template files
type CatalogConfig struct {
	Path  string `mapstructure:"path" toml:"path" yaml:"path"`    // directory of *.json, *.toml, *.yaml templates; empty = builtins only
	Watch bool   `mapstructure:"watch" toml:"watch" yaml:"watch"` // reload templates when files change
}

// IdentityConfig names the current user
type IdentityConfig struct {
	DisplayName string `mapstructure:"display_name" toml:"display_name" yaml:"display_name"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort = 8787
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
