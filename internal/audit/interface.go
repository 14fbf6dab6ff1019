package audit

import "context"

// Repository stores the hash chain. Implementations serialize Append so
// every entry links to the one before it.
type Repository interface {
	// Append assigns entry its sequence, prev hash and hash, then stores it
	Append(ctx context.Context, entry *Entry) error

	// List returns matching entries, newest first
	List(ctx context.Context, filter Filter) ([]Entry, error)

	// Count returns the total number of entries
	Count(ctx context.Context) (int, error)

	// VerifyChain recomputes every hash and link from the first entry
	VerifyChain(ctx context.Context) (VerifyResult, error)
}

var (
	_ Repository = (*Trail)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
