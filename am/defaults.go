package am

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/teranos/strata/canvas"
)

// EnvPrefix prefixes every environment override, e.g. STRATA_STORAGE_BACKEND.
const EnvPrefix = "STRATA"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "strata.db")

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.dir", "canvases")
	v.SetDefault("storage.dynamodb.table", "")
	v.SetDefault("storage.dynamodb.region", "")
	v.SetDefault("storage.dynamodb.endpoint", "")

	v.SetDefault("autosave.enabled", true)
	v.SetDefault("autosave.interval_ms", 250)
	v.SetDefault("autosave.breaker_failures", 5)
	v.SetDefault("autosave.breaker_timeout_seconds", 30)

	v.SetDefault("canvas.root_title", canvas.DefaultRootTitle)
	v.SetDefault("canvas.jitter", 40.0)
	v.SetDefault("canvas.viewport_width", 1280.0)
	v.SetDefault("canvas.viewport_height", 800.0)

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)

	v.SetDefault("identity.display_name", "")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})
}

// BindSensitiveEnvVars explicitly binds configuration that is usually set by
// the environment rather than a checked-in file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH")
	v.BindEnv("storage.dynamodb.table", EnvPrefix+"_STORAGE_DYNAMODB_TABLE")
	v.BindEnv("storage.dynamodb.region", EnvPrefix+"_STORAGE_DYNAMODB_REGION", "AWS_REGION")
	v.BindEnv("storage.dynamodb.endpoint", EnvPrefix+"_STORAGE_DYNAMODB_ENDPOINT")
	v.BindEnv("identity.display_name", EnvPrefix+"_IDENTITY_DISPLAY_NAME")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "strata.db"
	}
	return c.Database.Path
}

// GetRootTitle returns the root canvas title
func (c *Config) GetRootTitle() string {
	if c.Canvas.RootTitle == "" {
		return canvas.DefaultRootTitle
	}
	return c.Canvas.RootTitle
}

// GetServerPort returns the configured port, or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port <= 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Storage: %s, Autosave: %t, Server: {Port: %d}}",
		c.Database.Path, c.Storage.Backend, c.Autosave.Enabled, c.Server.Port)
}
