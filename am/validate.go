package am

import "github.com/teranos/strata/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendFile, BackendMemory, "":
	case BackendDynamoDB:
		if c.Storage.DynamoDB.Table == "" {
			return errors.WithHint(
				errors.New("storage.dynamodb.table is required for the dynamodb backend"),
				"set storage.dynamodb.table or STRATA_STORAGE_DYNAMODB_TABLE",
			)
		}
	default:
		return errors.WithHintf(
			errors.Newf("unknown storage.backend %q", c.Storage.Backend),
			"use one of %s, %s, %s, %s", BackendSQLite, BackendFile, BackendMemory, BackendDynamoDB,
		)
	}

	if c.Storage.Backend == BackendFile && c.Storage.Dir == "" {
		return errors.New("storage.dir cannot be empty for the file backend")
	}

	// Autosave: 0 = unthrottled / never trip, negative = invalid
	if c.Autosave.IntervalMS < 0 {
		return errors.Newf("autosave.interval_ms must be >= 0, got %d", c.Autosave.IntervalMS)
	}
	if c.Autosave.BreakerTimeoutSeconds < 0 {
		return errors.Newf("autosave.breaker_timeout_seconds must be >= 0, got %d", c.Autosave.BreakerTimeoutSeconds)
	}

	if c.Canvas.Jitter < 0 {
		return errors.Newf("canvas.jitter must be >= 0, got %f", c.Canvas.Jitter)
	}
	if c.Canvas.ViewportWidth < 0 || c.Canvas.ViewportHeight < 0 {
		return errors.Newf("canvas viewport must be non-negative, got %fx%f", c.Canvas.ViewportWidth, c.Canvas.ViewportHeight)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	return nil
}
