// Package server wires the engine's components and exposes them over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sentinel-ops/casedesk/internal/audit"
	caseservice "github.com/sentinel-ops/casedesk/internal/case/service"
	incidentservice "github.com/sentinel-ops/casedesk/internal/incident/service"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	registryservice "github.com/sentinel-ops/casedesk/internal/registry/service"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/idempotency"
	secmiddleware "github.com/sentinel-ops/casedesk/internal/shared/middleware"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/sentinel-ops/casedesk/internal/store"
)

// App holds all application dependencies
type App struct {
	Config      *config.Config
	Log         *slog.Logger
	DB          *database.DB
	Store       store.Store
	Bus         events.EventBus
	Idempotency idempotency.Store
	Audit       audit.Repository

	Registry  *registryservice.Service
	Cases     *caseservice.Service
	Incidents *incidentservice.Service

	limiter *secmiddleware.IPRateLimiter
	closers []func()
}

// New connects the configured backends and builds the services. The
// database is only opened for the postgres store and migrated on start.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	if cfg.Store.Driver == "postgres" {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.DB = db

		applied, err := database.Migrate(ctx, db.Pool, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("database ready", "migrations_applied", len(applied))
	}

	// The store owns the database from here on.
	st, err := store.Open(cfg.Store, app.DB)
	if err != nil {
		if app.DB != nil {
			app.DB.Close()
		}
		return nil, err
	}
	app.Store = st

	bus, backend, err := events.NewEventBus(ctx, cfg.KurrentDB, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start event bus: %w", err)
	}
	app.Bus = bus
	app.closers = append(app.closers, bus.Close)
	log.Info("event bus ready", "backend", backend)

	if err := app.startAudit(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Idempotency.Enabled {
		idem, closeIdem, err := newIdempotencyStore(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Idempotency = idem
		app.closers = append(app.closers, closeIdem)
	}

	app.wireServices(types.NewClock())
	return app, nil
}

// NewWithStore builds an app around an already opened store and bus
func NewWithStore(ctx context.Context, cfg *config.Config, log *slog.Logger, st store.Store, bus events.EventBus, idem idempotency.Store, clock *types.Clock) (*App, error) {
	app := &App{Config: cfg, Log: log, Store: st, Bus: bus, Idempotency: idem}
	if err := app.startAudit(ctx); err != nil {
		return nil, err
	}
	app.wireServices(clock)
	return app, nil
}

// startAudit records every domain event on the audit trail. The trail is
// kept in the database whenever the store is.
func (a *App) startAudit(ctx context.Context) error {
	if a.Bus == nil {
		return nil
	}
	if a.DB != nil {
		a.Audit = audit.NewPostgresRepository(a.DB.Pool)
	} else {
		a.Audit = audit.NewTrail()
	}
	if err := audit.NewSubscriber(a.Audit, a.Bus, a.Log).Start(ctx); err != nil {
		return fmt.Errorf("failed to start audit subscriber: %w", err)
	}
	return nil
}

func (a *App) wireServices(clock *types.Clock) {
	var bus events.Publisher
	if a.Bus != nil {
		bus = a.Bus
	}

	a.Registry = registryservice.NewService(a.Store, clock, bus, a.Log)
	a.Cases = caseservice.NewService(a.Store, clock,
		caseservice.WithPublisher(bus),
		caseservice.WithReferenceValidator(registrydomain.ReferenceValidatorFor(a.Config.Engine.StrictReferences)),
		caseservice.WithLogger(a.Log),
	)
	a.Incidents = incidentservice.NewService(a.Store, a.Cases, clock, bus, a.Log)
}

// Close releases backends in reverse order of opening. The bus stops before
// the store so audit writes never outlive the pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.Store != nil {
		a.Store.Close()
		a.Store = nil
	}
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config) (idempotency.Store, func(), error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return idempotency.NewRedisStore(client), func() { client.Close() }, nil
	default:
		s := idempotency.NewMemoryStore(cfg.Idempotency.TTL)
		return s, s.Close, nil
	}
}
