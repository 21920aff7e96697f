// Package cli parses yisona command configuration and runs its subcommands.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names accepted by -backend.
const (
	BackendFile     = "file"
	BackendDynamoDB = "dynamodb"
)

// Config holds command configuration. Environment variables provide the
// defaults and flags override them.
type Config struct {
	File          string        `env:"YISONA_FILE" envDefault:"data.json"`
	Backend       string        `env:"YISONA_BACKEND" envDefault:"file"`
	Table         string        `env:"YISONA_TABLE" envDefault:"yisona_documents"`
	DocumentID    string        `env:"YISONA_DOCUMENT_ID" envDefault:"default"`
	CreateMissing bool          `env:"YISONA_CREATE_MISSING"`
	RemoteURL     string        `env:"YISONA_REMOTE_URL"`
	Token         string        `env:"YISONA_TOKEN"`
	Timeout       time.Duration `env:"YISONA_TIMEOUT" envDefault:"10s"`
	Cache         bool          `env:"YISONA_CACHE"`
	Verbose       bool          `env:"YISONA_VERBOSE"`
}

// ParseConfig parses environment and flags into a Config and returns the
// remaining positional arguments.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, []string, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.File, "file", cfg.File, "Path of the JSON document")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Document backend: file or dynamodb")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "DynamoDB table holding documents")
	fs.StringVar(&cfg.DocumentID, "document", cfg.DocumentID, "DynamoDB document id")
	fs.BoolVar(&cfg.CreateMissing, "create-missing", cfg.CreateMissing, "Persist an empty document when none exists")
	fs.StringVar(&cfg.RemoteURL, "remote-url", cfg.RemoteURL, "Base URL of the remote document API")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Remote API token")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Remote request timeout")
	fs.BoolVar(&cfg.Cache, "cache", cfg.Cache, "Cache remote reads within one invocation")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}

// validate checks option combinations.
func (c Config) validate() error {
	switch c.Backend {
	case BackendFile:
		if c.File == "" {
			return errors.New("file backend requires -file")
		}
	case BackendDynamoDB:
		if c.Table == "" || c.DocumentID == "" {
			return errors.New("dynamodb backend requires -table and -document")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}
