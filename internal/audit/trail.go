package audit

import (
	"context"
	"sync"
)

// Trail is the in-process Repository. It lives as long as the process, like
// the memory case store it audits.
type Trail struct {
	mu       sync.RWMutex
	entries  []*Entry
	lastHash string
}

// NewTrail creates an empty trail
func NewTrail() *Trail {
	return &Trail{}
}

// Append records entry as the next link of the chain
func (t *Trail) Append(_ context.Context, entry *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry.chain(int64(len(t.entries)), t.lastHash)
	t.entries = append(t.entries, entry)
	t.lastHash = entry.Hash
	return nil
}

// List returns matching entries, newest first
func (t *Trail) List(_ context.Context, filter Filter) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := []Entry{}
	for i := len(t.entries) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		if e := t.entries[i]; filter.matches(e) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// Count returns the number of entries
func (t *Trail) Count(context.Context) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries), nil
}

// VerifyChain recomputes every hash and link from the first entry
func (t *Trail) VerifyChain(context.Context) (VerifyResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var v verifier
	for _, e := range t.entries {
		if !v.check(e) {
			break
		}
	}
	return v.result(), nil
}
