// Package app wires configuration, storage and the lifecycle service for
// the server and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"hr-lifecycle/backend/internal/audit"
	"hr-lifecycle/backend/internal/auth"
	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/internal/config"
	"hr-lifecycle/backend/internal/dispatch"
	"hr-lifecycle/backend/internal/engine"
	"hr-lifecycle/backend/internal/logging"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/internal/services"
)

// App holds the long-lived components built from one Config.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Repo      repository.Repository
	Catalog   *catalog.Catalog
	Engine    *engine.Engine
	Lifecycle *services.LifecycleService
}

// New opens the configured store and builds the service stack on it.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	repo, err := OpenRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	eng := engine.New(cat, repo, audit.NewLog(repo), engine.WithLogger(logger.With("component", "engine")))
	gateway := services.NewGatewayClient(cfg.Integrations.GatewayURL, cfg.Integrations.Timeout)
	lifecycle := services.NewLifecycleService(
		eng,
		dispatch.New(cat, cfg.Company()),
		repo,
		services.Collaborators{Email: gateway, Letters: gateway, Notifier: gateway},
		logger.With("component", "lifecycle"),
		services.WithOverridePolicy(auth.NewPolicy(cfg.Auth.OverrideActors, logger.With("component", "auth"))),
	)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Repo:      repo,
		Catalog:   cat,
		Engine:    eng,
		Lifecycle: lifecycle,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Repo.Close()
}

// OpenRepository opens the store selected by storage.driver and applies its migrations.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage; workflows are lost on restart")
		return repository.NewMemoryStore(), nil
	case config.DriverSQLite:
		store, err := repository.OpenSQLite(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("SQLite store opened", "path", cfg.Storage.SQLite.Path)
		return store, nil
	case config.DriverPostgres:
		pool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store := repository.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("Database connected", "host", cfg.Storage.Postgres.Host, "name", cfg.Storage.Postgres.Name)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.Storage.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Storage.Postgres.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
