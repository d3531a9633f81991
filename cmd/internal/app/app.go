// Package app wires the apseq server runtime: config, logging, persistence,
// and the HTTP API.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"apseq/cmd/identity"
	"apseq/cmd/internal/access"
	"apseq/cmd/internal/api"
	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/project"
	"apseq/cmd/internal/recipe"
	"apseq/cmd/security/secret"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the apseq server runtime: it owns HTTP server wiring and service dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	api     *api.Handler
	metrics *Metrics
}

// services bundles the wired domain layer.
type services struct {
	users    *identity.Service
	projects *project.Service
	members  *membership.Service
	sessions *access.Service
	recipes  *recipe.Service
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	secrets, err := secret.FromEnv()
	if err != nil {
		return nil, err
	}
	accessCfg := access.Config{
		TTL:         cfg.SessionTTL,
		RenewWithin: cfg.SessionRenewWithin,
	}

	var (
		st        Store
		pool      *pgxpool.Pool
		dbEnabled bool
		svcs      services
	)

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		svcs, err = newMemoryServices(secrets, accessCfg)
		if err != nil {
			return nil, err
		}
		st = nopStore{}
	} else {
		if cfg.DBMigrate {
			if err := MigrateDB(cfg); err != nil {
				return nil, err
			}
			log.Info("db.migrated")
		}
		pool, err = NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

		svcs, err = newPostgresServices(pool, cfg.DBSchema, secrets, accessCfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		// Ownership model: app owns the pool lifecycle; stores never close it.
		st = dbStore{pool: pool}
		dbEnabled = true
	}

	handler, err := api.NewHandler(
		log,
		api.Config{MaxBodyBytes: cfg.APIMaxBodyBytes},
		svcs.users, svcs.projects, svcs.members, svcs.sessions, svcs.recipes,
	)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	var metrics *Metrics
	if cfg.MetricsEnabled {
		metrics = NewMetrics()
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    pool,
		dbEnabled: dbEnabled,
		api:       handler,
		metrics:   metrics,
	}, nil
}

// newMemoryServices wires the dev/test service graph.
//
// Construction order matters: the membership store needs the session granter
// up front, but learns about the project directory only after the project
// store exists.
func newMemoryServices(secrets secret.Config, accessCfg access.Config) (services, error) {
	sessStore := access.NewMemoryStore()
	sessions, err := access.NewService(accessCfg, sessStore)
	if err != nil {
		return services{}, err
	}

	memStore := membership.NewMemoryStore(nil, sessions)
	recStore := recipe.NewMemoryStore()
	projStore := project.NewMemoryStore(memStore, sessStore, recStore)
	memStore.SetProjectDirectory(projStore)

	users, err := identity.NewService(identity.NewMemoryStore(), secrets)
	if err != nil {
		return services{}, err
	}

	dir := api.NewUserDirectory(users)
	members := membership.NewService(memStore, projStore, dir, secrets)
	return services{
		users:    users,
		projects: project.NewService(projStore, secrets, dir, members),
		members:  members,
		sessions: sessions,
		recipes:  recipe.NewService(recStore, members),
	}, nil
}

// newPostgresServices wires the production service graph on a shared pool.
func newPostgresServices(pool *pgxpool.Pool, schema string, secrets secret.Config, accessCfg access.Config) (services, error) {
	sessStore, err := access.NewPostgresStore(pool, access.WithSchema(schema))
	if err != nil {
		return services{}, err
	}
	sessions, err := access.NewService(accessCfg, sessStore)
	if err != nil {
		return services{}, err
	}

	memStore, err := membership.NewPostgresStore(pool,
		membership.WithSchema(schema),
		membership.WithSessionConfig(accessCfg),
	)
	if err != nil {
		return services{}, err
	}
	projStore, err := project.NewPostgresStore(pool, project.WithSchema(schema))
	if err != nil {
		return services{}, err
	}
	recStore, err := recipe.NewPostgresStore(pool, recipe.WithSchema(schema))
	if err != nil {
		return services{}, err
	}
	idStore, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		return services{}, err
	}

	users, err := identity.NewService(idStore, secrets)
	if err != nil {
		return services{}, err
	}

	dir := api.NewUserDirectory(users)
	members := membership.NewService(memStore, projStore, dir, secrets)
	return services{
		users:    users,
		projects: project.NewService(projStore, secrets, dir, members),
		members:  members,
		sessions: sessions,
		recipes:  recipe.NewService(recStore, members),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.api, a.metrics)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	if a.metrics != nil {
		handler = a.metrics.Instrument(handler)
	}
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)
	handler = WithRequestID(handler)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
