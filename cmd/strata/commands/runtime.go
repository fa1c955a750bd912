package commands

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/strata/am"
	"github.com/teranos/strata/catalog"
	"github.com/teranos/strata/db"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/server"
	"github.com/teranos/strata/session"
	"github.com/teranos/strata/storage"
)

// runtime is everything a command needs, opened from one Config.
type runtime struct {
	cfg      *am.Config
	logger   *zap.SugaredLogger
	db       *sql.DB
	store    *storage.Store
	catalog  *catalog.Catalog
	registry *prometheus.Registry
	autosave *storage.AutoSaver
	watcher  *catalog.Watcher
}

type runtimeOptions struct {
	autosave bool
	watch    bool
}

// openRuntime opens storage and the catalog. Autosave and the template
// watcher are started only when asked for and enabled in config.
func openRuntime(ctx context.Context, cfg *am.Config, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   logger.ComponentLogger("runtime"),
		registry: prometheus.NewRegistry(),
	}

	kv, err := rt.openKV(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = storage.NewStore(kv, storage.WithLogger(logger.ComponentLogger("storage")))

	rt.catalog, err = catalog.Load(cfg.Catalog.Path)
	if err != nil {
		rt.Close()
		return nil, errors.Wrap(err, "load template catalog")
	}

	if opts.watch && cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		rt.watcher, err = catalog.Watch(rt.catalog, cfg.Catalog.Path, logger.ComponentLogger("catalog"))
		if err != nil {
			// Templates still load; only live reload is lost.
			rt.logger.Warnw("Template watcher unavailable", "dir", cfg.Catalog.Path, logger.FieldError, err)
		}
	}

	if opts.autosave && cfg.Autosave.Enabled {
		rt.autosave = storage.NewAutoSaver(rt.store,
			storage.WithInterval(cfg.Autosave.Interval()),
			storage.WithBreaker(cfg.Autosave.BreakerFailures, cfg.Autosave.BreakerTimeout()),
			storage.WithMetrics(storage.NewMetrics(server.MetricsNamespace, rt.registry)),
			storage.WithAutoSaveLogger(logger.ComponentLogger("autosave")),
		)
		rt.autosave.Start(ctx)
	}
	return rt, nil
}

func (rt *runtime) openKV(ctx context.Context) (storage.KV, error) {
	switch rt.cfg.Storage.Backend {
	case am.BackendSQLite, "":
		database, err := db.OpenWithMigrations(rt.cfg.GetDatabasePath(), logger.ComponentLogger("db"))
		if err != nil {
			return nil, errors.Wrap(err, "open database")
		}
		rt.db = database
		return storage.NewSQLiteKV(database), nil
	case am.BackendFile:
		return storage.NewFileKV(rt.cfg.Storage.Dir)
	case am.BackendMemory:
		return storage.NewMemoryKV(), nil
	case am.BackendDynamoDB:
		return storage.OpenDynamoKV(ctx, storage.DynamoOptions{
			Table:    rt.cfg.Storage.DynamoDB.Table,
			Region:   rt.cfg.Storage.DynamoDB.Region,
			Endpoint: rt.cfg.Storage.DynamoDB.Endpoint,
		})
	}
	return nil, errors.WithHintf(errors.Newf("unknown storage backend %q", rt.cfg.Storage.Backend),
		"use one of %s, %s, %s, %s", am.BackendSQLite, am.BackendFile, am.BackendMemory, am.BackendDynamoDB)
}

// newSession starts a session over the runtime's store and catalog.
func (rt *runtime) newSession(ctx context.Context) *session.Session {
	opts := []session.Option{
		session.WithStore(rt.store),
		session.WithCatalog(rt.catalog),
		session.WithRootTitle(rt.cfg.GetRootTitle()),
		session.WithLogger(logger.ComponentLogger("session")),
		session.WithControllerOptions(
			interact.WithJitter(rt.cfg.Canvas.Jitter),
			interact.WithLogger(logger.ComponentLogger("interact")),
		),
	}
	if name := rt.cfg.Identity.DisplayName; name != "" {
		opts = append(opts, session.WithIdentity(session.StaticIdentity(name)))
	}
	if rt.autosave != nil {
		opts = append(opts, session.WithAutoSaver(rt.autosave))
	}
	return session.New(ctx, opts...)
}

// viewport is the configured default window, centred on the origin.
func (rt *runtime) viewport() interact.Viewport {
	return interact.Viewport{
		Zoom:   1,
		Width:  rt.cfg.Canvas.ViewportWidth,
		Height: rt.cfg.Canvas.ViewportHeight,
	}
}

// Close flushes pending saves and releases everything opened.
func (rt *runtime) Close() {
	if rt.watcher != nil {
		if err := rt.watcher.Close(); err != nil {
			rt.logger.Warnw("Closing template watcher", logger.FieldError, err)
		}
	}
	if rt.autosave != nil {
		rt.autosave.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warnw("Closing database", logger.FieldError, err)
		}
	}
}

// loadConfig loads config and applies the --db-path and --backend overrides
// shared by every command that touches storage.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	loaded, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	cfg := *loaded
	if path, _ := cmd.Flags().GetString("db-path"); path != "" {
		cfg.Database.Path = path
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
