package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	caseinfra "github.com/sentinel-ops/casedesk/internal/case/infrastructure"
	incidentdomain "github.com/sentinel-ops/casedesk/internal/incident/domain"
	incidentinfra "github.com/sentinel-ops/casedesk/internal/incident/infrastructure"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	registryinfra "github.com/sentinel-ops/casedesk/internal/registry/infrastructure"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
)

// PostgresStore runs units of work as PostgreSQL transactions. Writers
// serialize on the id_sequences and case rows they lock; readers get a
// repeatable-read snapshot.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a store on an open connection pool
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	writeTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	readTxOptions  = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// Update runs fn in a read-write transaction, committing only if fn succeeds
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := pgx.BeginTxFunc(ctx, s.db.Pool, writeTxOptions, func(tx pgx.Tx) error {
		return fn(postgresTx{tx: tx, writable: true})
	})
	metrics.RecordStoreTx("postgres", "write", err, time.Since(start))
	return err
}

// View runs fn in a read-only snapshot transaction
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := pgx.BeginTxFunc(ctx, s.db.Pool, readTxOptions, func(tx pgx.Tx) error {
		return fn(postgresTx{tx: tx})
	})
	metrics.RecordStoreTx("postgres", "read", err, time.Since(start))
	return err
}

// Health pings the database
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

type postgresTx struct {
	tx       pgx.Tx
	writable bool
}

func (t postgresTx) Cases() casedomain.Repository {
	return caseinfra.NewPostgresRepository(t.tx, t.writable)
}

func (t postgresTx) Incidents() incidentdomain.Repository {
	return incidentinfra.NewPostgresRepository(t.tx)
}

func (t postgresTx) Operators() registrydomain.Repository {
	return registryinfra.NewPostgresRepository(t.tx)
}
