package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/animus-labs/gluejobs/internal/catalog"
	"github.com/animus-labs/gluejobs/internal/config"
	"github.com/animus-labs/gluejobs/internal/glue"
	"github.com/animus-labs/gluejobs/internal/jobparams"
	"github.com/animus-labs/gluejobs/internal/jobs"
	"github.com/animus-labs/gluejobs/internal/jobutil"
	"github.com/animus-labs/gluejobs/internal/platform/database"
	"github.com/animus-labs/gluejobs/internal/platform/lineageevent"
	"github.com/animus-labs/gluejobs/internal/platform/metrics"
	"github.com/animus-labs/gluejobs/internal/platform/objectstore"
	"github.com/animus-labs/gluejobs/internal/platform/runlog"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job> [--NAME value | --NAME=value | NAME=value]...",
		Short: "Run a job script with Glue-style job arguments",
		// Job arguments are not cobra flags; jobparams reads them.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
				return cmd.Help()
			}
			def, ok := jobs.Lookup(args[0])
			if !ok {
				return configError(fmt.Errorf("unknown job %q (see 'gluejobs jobs')", args[0]))
			}
			params, err := jobparams.Resolve(args[1:], def.Required)
			if err != nil {
				return configError(fmt.Errorf("%s: %w", def.Name, err))
			}

			cfg, err := config.FromEnv()
			if err != nil {
				return configError(err)
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			ctx := cmd.Context()
			svc, err := openServices(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			rt := jobs.Runtime{
				Glue:       svc.glue,
				Status:     &jobutil.StatusLogger{Out: cmd.OutOrStdout()},
				Out:        cmd.OutOrStdout(),
				ConfigPath: cfg.JobConfigPath,
			}
			if err := def.Run(ctx, rt, params); err != nil {
				return fmt.Errorf("job %s failed: %w", def.Name, err)
			}
			return nil
		},
	}
}

type services struct {
	glue *glue.Context
	db   *database.DB
}

func (s *services) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openServices connects the object store and, with the sql backend, the
// catalog database and the run and lineage recorders.
func openServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	store, err := objectstore.NewMinioStore(cfg.ObjectStore)
	if err != nil {
		return nil, configError(fmt.Errorf("object store client: %w", err))
	}

	svc := &services{}
	opts := glue.Options{
		Logger: logger,
		Store:  store,
		Pusher: metrics.Pusher{URL: cfg.PushgatewayURL, Timeout: cfg.PushTimeout},
	}
	if cfg.CatalogBackend == config.CatalogSQL {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database unavailable: %w", err)
		}
		svc.db = db
		cat := catalog.NewSQLCatalog(db)
		if cfg.EnsureSchema {
			if err := ensureSchema(ctx, db, cat); err != nil {
				svc.Close()
				return nil, err
			}
		}
		opts.Catalog = cat
		if cfg.RecordRuns {
			opts.Runs = runlog.NewRecorder(db)
			opts.Lineage = lineageevent.NewRecorder(db)
		}
	}

	gc, err := glue.NewContext(opts)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.glue = gc
	return svc, nil
}

func ensureSchema(ctx context.Context, db *database.DB, cat *catalog.SQLCatalog) error {
	return errors.Join(
		cat.EnsureSchema(ctx),
		runlog.EnsureSchema(ctx, db, db.Dialect),
		lineageevent.EnsureSchema(ctx, db, db.Dialect),
	)
}
