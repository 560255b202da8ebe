// Package config gathers the process settings a job run needs from the
// environment. Job parameters are not part of it; they come from argv.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/animus-labs/gluejobs/internal/platform/database"
	"github.com/animus-labs/gluejobs/internal/platform/env"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
)

const (
	CatalogSQL  = "sql"
	CatalogNone = "none"
)

type Config struct {
	LogLevel slog.Level

	ObjectStore objectstore.Config

	// CatalogBackend is "sql" for the database-backed catalog or "none" to
	// run without catalog, run log and lineage.
	CatalogBackend string
	Database       database.Config
	// EnsureSchema creates the catalog, run log and lineage tables on start.
	EnsureSchema bool
	// RecordRuns enables the job_run_events and lineage_events writers.
	RecordRuns bool

	PushgatewayURL string
	PushTimeout    time.Duration

	// JobConfigPath is the default config object for jobs that load one.
	JobConfigPath string
}

func FromEnv() (Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.String("GLUE_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("parse GLUE_LOG_LEVEL: %w", err)
	}
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("object store: %w", err)
	}
	cfg := Config{
		LogLevel:       level,
		ObjectStore:    storeCfg,
		CatalogBackend: strings.ToLower(strings.TrimSpace(env.String("GLUE_CATALOG_BACKEND", CatalogSQL))),
		PushgatewayURL: strings.TrimSpace(env.String("GLUE_PUSHGATEWAY_URL", "")),
		JobConfigPath:  strings.TrimSpace(env.String("GLUE_JOB_CONFIG_PATH", "")),
	}
	if cfg.CatalogBackend == CatalogSQL {
		if cfg.Database, err = database.ConfigFromEnv(); err != nil {
			return Config{}, fmt.Errorf("database: %w", err)
		}
	}
	if cfg.EnsureSchema, err = env.Bool("GLUE_DATABASE_ENSURE_SCHEMA", true); err != nil {
		return Config{}, err
	}
	if cfg.RecordRuns, err = env.Bool("GLUE_RECORD_RUNS", true); err != nil {
		return Config{}, err
	}
	if cfg.PushTimeout, err = env.Duration("GLUE_PUSHGATEWAY_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.ObjectStore.Validate(); err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	switch c.CatalogBackend {
	case CatalogSQL:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	case CatalogNone:
	default:
		return fmt.Errorf("GLUE_CATALOG_BACKEND must be %q or %q", CatalogSQL, CatalogNone)
	}
	if c.PushgatewayURL != "" {
		u, err := url.Parse(c.PushgatewayURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("GLUE_PUSHGATEWAY_URL must be an absolute URL: %q", c.PushgatewayURL)
		}
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("GLUE_PUSHGATEWAY_TIMEOUT must be positive")
	}
	if c.JobConfigPath != "" {
		if _, err := objectstore.ParseURI(c.JobConfigPath); err != nil {
			return fmt.Errorf("GLUE_JOB_CONFIG_PATH: %w", err)
		}
	}
	return nil
}
