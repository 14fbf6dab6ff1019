// Package dbtest opens the PostgreSQL database used by integration tests.
// Tests skip unless CASEDESK_TEST_DATABASE_DSN names a database they may
// wipe.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/sentinel-ops/casedesk/internal/shared/config"
	"github.com/sentinel-ops/casedesk/internal/shared/database"
)

// EnvDSN names the variable holding the test database DSN
const EnvDSN = "CASEDESK_TEST_DATABASE_DSN"

// DSN returns the test database DSN or skips t
func DSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	return dsn
}

// Open connects to the test database, applies migrations and truncates
// tables. The pool is closed when t ends.
func Open(t testing.TB, tables ...string) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, config.DatabaseConfig{URL: DSN(t), MaxConns: 20})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(db.Close)

	if _, err := database.Migrate(ctx, db.Pool, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	if len(tables) > 0 {
		if _, err := db.Pool.Exec(ctx, `TRUNCATE `+strings.Join(tables, ", ")); err != nil {
			t.Fatalf("failed to truncate %v: %v", tables, err)
		}
	}
	return db
}

// ResetSequences zeroes every id counter
func ResetSequences(t testing.TB, db *database.DB) {
	t.Helper()
	if _, err := db.Pool.Exec(context.Background(), `UPDATE casedesk.id_sequences SET value = 0`); err != nil {
		t.Fatalf("failed to reset sequences: %v", err)
	}
}
