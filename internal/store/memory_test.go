package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sentinel-ops/casedesk/internal/auth"
	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	incidentdomain "github.com/sentinel-ops/casedesk/internal/incident/domain"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

func newCase(t *testing.T, tx Tx, title string) *casedomain.Case {
	t.Helper()
	ctx := context.Background()
	id, err := tx.Cases().NextID(ctx)
	require.NoError(t, err)
	c, err := casedomain.NewCase(id, title, "description", casedomain.SeverityHigh, "alice", types.Timestamp(id))
	require.NoError(t, err)
	require.NoError(t, tx.Cases().Save(ctx, c))
	return c
}

func TestMemoryStoreAllocatesSequentialIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var ids []types.ID
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update(ctx, func(tx Tx) error {
			ids = append(ids, newCase(t, tx, "case").ID)
			return nil
		}))
	}
	assert.Equal(t, []types.ID{1, 2, 3}, ids)
}

func TestMemoryStoreRollbackRestoresState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		c := newCase(t, tx, "kept")
		return tx.Cases().AppendNote(ctx, c.ID, casedomain.Note{Content: "first", Author: "Alice", Timestamp: 10})
	}))

	err := s.Update(ctx, func(tx Tx) error {
		c, err := tx.Cases().FindByID(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, c.UpdateStatus(casedomain.CaseStatusClosed, "alice", 20))
		require.NoError(t, c.Assign("bob", "alice", 21))
		require.NoError(t, tx.Cases().Update(ctx, c))
		require.NoError(t, tx.Cases().AppendNote(ctx, 1, casedomain.Note{Content: "second", Author: "Alice", Timestamp: 22}))

		newCase(t, tx, "discarded")

		id, err := tx.Incidents().NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.ID(1), id)

		require.NoError(t, tx.Cases().Delete(ctx, 1))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		c, err := tx.Cases().FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, casedomain.CaseStatusOpen, c.Status)
		assert.Nil(t, c.AssignedAnalyst)
		assert.Equal(t, []casedomain.Note{{Content: "first", Author: "Alice", Timestamp: 10}}, c.Notes)

		cases, err := tx.Cases().List(ctx)
		require.NoError(t, err)
		assert.Len(t, cases, 1)
		return nil
	}))

	// Counters rolled back with the writes
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		assert.Equal(t, types.ID(2), newCase(t, tx, "next").ID)
		id, err := tx.Incidents().NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.ID(1), id)
		return nil
	}))
}

func TestMemoryStoreRollbackOnPanic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.Update(ctx, func(tx Tx) error {
			newCase(t, tx, "doomed")
			panic("boom")
		})
	})

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		_, err := tx.Cases().FindByID(ctx, 1)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
		return nil
	}))
}

func TestMemoryStoreViewRejectsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.View(ctx, func(tx Tx) error {
		_, err := tx.Cases().NextID(ctx)
		return err
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))

	err = s.View(ctx, func(tx Tx) error {
		_, err := tx.Operators().NextPosition(ctx)
		return err
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		c := newCase(t, tx, "original")
		c.Title = "mutated after save"
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		c, err := tx.Cases().FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "original", c.Title)
		c.Notes = append(c.Notes, casedomain.Note{Content: "leak"})

		again, err := tx.Cases().FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, again.Notes)
		return nil
	}))
}

func TestMemoryStoreDuplicateIDIsInternal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Update(ctx, func(tx Tx) error {
		c := newCase(t, tx, "first")
		return tx.Cases().Save(ctx, c)
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
}

func TestMemoryStoreOperators(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	register := func(principal types.Principal) error {
		return s.Update(ctx, func(tx Tx) error {
			pos, err := tx.Operators().NextPosition(ctx)
			if err != nil {
				return err
			}
			p, err := registrydomain.NewOperatorProfile(principal, string(principal), pos, types.Timestamp(pos))
			if err != nil {
				return err
			}
			return tx.Operators().Save(ctx, p)
		})
	}

	require.NoError(t, register("carol"))
	require.NoError(t, register("alice"))
	assert.True(t, apperrors.Is(register("carol"), apperrors.ErrAlreadyExists))

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.Operators().UpdateRole(ctx, "alice", auth.RoleAdmin)
	}))
	err := s.Update(ctx, func(tx Tx) error {
		return tx.Operators().UpdateRole(ctx, "nobody", auth.RoleAdmin)
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		profiles, err := tx.Operators().List(ctx)
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		assert.Equal(t, types.Principal("carol"), profiles[0].Principal)
		assert.Equal(t, auth.RoleAdmin, profiles[0].Role)
		assert.Equal(t, types.Principal("alice"), profiles[1].Principal)
		assert.Equal(t, auth.RoleAdmin, profiles[1].Role)
		return nil
	}))
}

func TestMemoryStoreIncidents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sub := incidentdomain.Submission{
		Title:           "Phish",
		Type:            incidentdomain.IncidentTypePhishing,
		Description:     "suspicious mail",
		AffectedSystems: "mail",
		Severity:        casedomain.SeverityMedium,
		ReporterName:    "Bob",
	}

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		c := newCase(t, tx, sub.Title)
		id, err := tx.Incidents().NextID(ctx)
		require.NoError(t, err)
		report, err := incidentdomain.NewIncidentReport(id, sub, c.ID, 5)
		require.NoError(t, err)
		return tx.Incidents().Save(ctx, report)
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		report, err := tx.Incidents().FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, types.ID(1), report.LinkedCaseID)

		_, err = tx.Incidents().FindByID(ctx, 2)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
		return nil
	}))
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const writers = 50
	ids := make(chan types.ID, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(tx Tx) error {
				id, err := tx.Cases().NextID(ctx)
				if err != nil {
					return err
				}
				c, err := casedomain.NewCase(id, "t", "d", casedomain.SeverityLow, "alice", types.Timestamp(id))
				if err != nil {
					return err
				}
				ids <- id
				return tx.Cases().Save(ctx, c)
			})
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[types.ID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	for id := types.ID(1); id <= writers; id++ {
		assert.True(t, seen[id], "missing id %d", id)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(config.StoreConfig{Driver: "postgres"}, nil)
	assert.Error(t, err)

	_, err = Open(config.StoreConfig{Driver: "bolt"}, nil)
	assert.Error(t, err)
}
