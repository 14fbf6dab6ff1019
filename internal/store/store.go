// Package store provides the transactional unit of work shared by the case,
// incident and registry modules.
package store

import (
	"context"
	"fmt"

	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	incidentdomain "github.com/sentinel-ops/casedesk/internal/incident/domain"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
)

// Tx exposes the repositories bound to one transaction
type Tx interface {
	Cases() casedomain.Repository
	Incidents() incidentdomain.Repository
	Operators() registrydomain.Repository
}

// Store runs units of work against the engine state
type Store interface {
	// Update runs fn in a read-write transaction. Writers are serialized
	// against each other; if fn returns an error every write made through
	// tx, including id allocation, is rolled back.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only snapshot
	View(ctx context.Context, fn func(tx Tx) error) error

	// Health checks the backing storage
	Health(ctx context.Context) error

	// Close releases the backing storage
	Close()
}

// errReadOnly is returned when a mutation is attempted inside View
var errReadOnly = errors.Internal(fmt.Errorf("write attempted in read-only transaction"))

// Open creates the store selected by cfg. db is only used by the postgres
// driver and may be nil otherwise.
func Open(cfg config.StoreConfig, db *database.DB) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres store requires a database connection")
		}
		return NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
