package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"aicompass/internal/catalog"
	"aicompass/internal/db"
	"aicompass/internal/engine"
	"aicompass/internal/migrate"
)

// Options select the workspace and catalog an engine is built over.
type Options struct {
	Workspace   string
	CatalogFile string
	InviteDays  int
	Logger      *zap.Logger
}

// Runtime is an opened workspace: a migrated database and an engine bound to it.
type Runtime struct {
	DB      *sql.DB
	Engine  engine.Engine
	Catalog *catalog.Benchmark
}

// Close releases the database.
func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Open loads the catalog, opens and migrates the workspace database and wires an engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cat, err := catalog.Load(opts.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Info("migrations applied", zap.Int("count", applied), zap.String("db", db.Path(opts.Workspace)))
	}

	e := engine.New(conn, cat)
	if opts.InviteDays > 0 {
		e.InviteDays = opts.InviteDays
	}
	e.Logger = logger
	e.Tracer = otel.Tracer("aicompass/engine")
	logger.Debug("catalog loaded",
		zap.String("name", cat.Name),
		zap.String("version", cat.Version),
		zap.Int("pillars", len(cat.Pillars)),
		zap.Int("metrics", cat.MetricCount()))
	return &Runtime{DB: conn, Engine: e, Catalog: cat}, nil
}
