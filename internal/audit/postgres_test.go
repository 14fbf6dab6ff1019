package audit

import (
	"sync"
	"testing"

	"github.com/sentinel-ops/casedesk/internal/shared/database/dbtest"
	"github.com/sentinel-ops/casedesk/internal/shared/events"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	db := dbtest.Open(t, "casedesk.audit_entries")
	return NewPostgresRepository(db.Pool)
}

func TestPostgresRepositoryChainSurvivesReload(t *testing.T) {
	repo := openRepository(t)

	appended := appendAll(t, repo,
		caseEvent(events.TypeCaseCreated, 1, "alice"),
		caseEvent(events.TypeCaseAssigned, 1, "alice"),
		events.NewEvent(events.TypeOperatorJoined, "registry", 5, map[string]any{
			"principal": types.Principal("carol"),
		}).WithActor("carol"),
	)
	assert.Equal(t, appended[0].Hash, appended[1].PrevHash)

	// A fresh repository reads the chain another process wrote.
	reloaded := NewPostgresRepository(repo.pool)
	result, err := reloaded.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid, "%+v", result)
	assert.Equal(t, 3, result.Checked)

	next := appendAll(t, reloaded, caseEvent(events.TypeCaseDeleted, 1, "alice"))[0]
	assert.Equal(t, int64(4), next.Sequence)
	assert.Equal(t, appended[2].Hash, next.PrevHash)

	n, err := reloaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPostgresRepositoryListFilters(t *testing.T) {
	repo := openRepository(t)
	appendAll(t, repo,
		caseEvent(events.TypeCaseCreated, 1, "alice"),
		caseEvent(events.TypeCaseCreated, 2, "bob"),
	)

	all := list(t, repo, Filter{})
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[0].Sequence, "newest first")
	assert.True(t, all[0].VerifyHash())

	byActor := list(t, repo, Filter{Actor: "bob", ResourceType: "case"})
	require.Len(t, byActor, 1)
	assert.Equal(t, "2", byActor[0].ResourceID)

	assert.Len(t, list(t, repo, Filter{Action: events.TypeCaseCreated, Limit: 1}), 1)
	assert.Empty(t, list(t, repo, Filter{ResourceID: "99"}))
}

func TestPostgresRepositoryConcurrentAppends(t *testing.T) {
	repo := openRepository(t)

	const writers = 20
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			assert.NoError(t, repo.Append(ctx, NewEntry(caseEvent(events.TypeCaseCreated, id, "alice"))))
		}(types.ID(i))
	}
	wg.Wait()

	result, err := repo.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid, "%+v", result)
	assert.Equal(t, writers, result.Checked)
}

func TestPostgresRepositorySkipsRecordedEvents(t *testing.T) {
	repo := openRepository(t)

	event := caseEvent(events.TypeCaseCreated, 1, "alice")
	require.NoError(t, repo.Append(ctx, NewEntry(event)))
	require.NoError(t, repo.Append(ctx, NewEntry(event)))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresRepositoryIsAppendOnly(t *testing.T) {
	repo := openRepository(t)
	appendAll(t, repo, caseEvent(events.TypeCaseCreated, 1, "alice"))

	_, err := repo.pool.Exec(ctx, `UPDATE casedesk.audit_entries SET actor = 'mallory'`)
	assert.Error(t, err)
	_, err = repo.pool.Exec(ctx, `DELETE FROM casedesk.audit_entries`)
	assert.Error(t, err)
}
