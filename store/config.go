package store

import "log/slog"

// DefaultIndent is the indentation used when writing documents to files.
const DefaultIndent = "    "

// Config holds configuration for the Store.
type Config struct {
	// Indent is the per-level indentation of persisted files.
	// Default: four spaces
	Indent string

	// CreateMissing persists an empty document (creating parent directories)
	// when the backing document does not exist at open time.
	// Default: false
	CreateMissing bool

	// Logger receives diagnostics. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used by most callers.
func DefaultConfig() Config {
	return Config{
		Indent: DefaultIndent,
		Logger: slog.Default(),
	}
}

// validate fills in zero values.
func (c *Config) validate() {
	if c.Indent == "" {
		c.Indent = DefaultIndent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
