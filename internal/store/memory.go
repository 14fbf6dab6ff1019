package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sentinel-ops/casedesk/internal/auth"
	casedomain "github.com/sentinel-ops/casedesk/internal/case/domain"
	incidentdomain "github.com/sentinel-ops/casedesk/internal/incident/domain"
	registrydomain "github.com/sentinel-ops/casedesk/internal/registry/domain"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

// MemoryStore keeps all engine state in process. A single RW lock gives
// writers exclusive access and readers a stable snapshot; values are copied
// across the boundary so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	caseSeq     int64
	incidentSeq int64

	cases         map[types.ID]*casedomain.Case
	incidents     map[types.ID]*incidentdomain.IncidentReport
	operators     map[types.Principal]*registrydomain.OperatorProfile
	operatorOrder []types.Principal
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:     make(map[types.ID]*casedomain.Case),
		incidents: make(map[types.ID]*incidentdomain.IncidentReport),
		operators: make(map[types.Principal]*registrydomain.OperatorProfile),
	}
}

// Update runs fn under the write lock and undoes its writes on error
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, writable: true}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	err := fn(tx)
	if err != nil {
		tx.rollback()
	}
	metrics.RecordStoreTx("memory", "write", err, time.Since(start))
	return err
}

// View runs fn under the read lock
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	err := fn(&memoryTx{store: s})
	metrics.RecordStoreTx("memory", "read", err, time.Since(start))
	return err
}

// Health always succeeds for the in-memory store
func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() {}

type memoryTx struct {
	store    *MemoryStore
	writable bool
	undo     []func()
}

func (tx *memoryTx) Cases() casedomain.Repository {
	return memoryCases{tx}
}

func (tx *memoryTx) Incidents() incidentdomain.Repository {
	return memoryIncidents{tx}
}

func (tx *memoryTx) Operators() registrydomain.Repository {
	return memoryOperators{tx}
}

// write registers the inverse of a mutation about to be applied
func (tx *memoryTx) write(undo func()) error {
	if !tx.writable {
		return errReadOnly
	}
	tx.undo = append(tx.undo, undo)
	return nil
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// --- Cases ---

type memoryCases struct {
	tx *memoryTx
}

func (r memoryCases) NextID(ctx context.Context) (types.ID, error) {
	s := r.tx.store
	if err := r.tx.write(func() { s.caseSeq-- }); err != nil {
		return 0, err
	}
	s.caseSeq++
	return types.ID(s.caseSeq), nil
}

func (r memoryCases) Save(ctx context.Context, c *casedomain.Case) error {
	s := r.tx.store
	if _, exists := s.cases[c.ID]; exists {
		return errors.Invariant("case id %d already in use", c.ID)
	}
	if err := r.tx.write(func() { delete(s.cases, c.ID) }); err != nil {
		return err
	}
	s.cases[c.ID] = c.Clone()
	return nil
}

func (r memoryCases) FindByID(ctx context.Context, id types.ID) (*casedomain.Case, error) {
	c, ok := r.tx.store.cases[id]
	if !ok {
		return nil, errors.NotFound("case", id.String())
	}
	return c.Clone(), nil
}

func (r memoryCases) List(ctx context.Context) ([]casedomain.Case, error) {
	out := make([]casedomain.Case, 0, len(r.tx.store.cases))
	for _, c := range r.tx.store.cases {
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryCases) Update(ctx context.Context, c *casedomain.Case) error {
	s := r.tx.store
	current, ok := s.cases[c.ID]
	if !ok {
		return errors.NotFound("case", c.ID.String())
	}

	prev := current.Clone()
	id := c.ID
	err := r.tx.write(func() {
		restored := s.cases[id]
		restored.Status = prev.Status
		restored.AssignedAnalyst = prev.AssignedAnalyst
		restored.UpdatedAt = prev.UpdatedAt
	})
	if err != nil {
		return err
	}

	current.Status = c.Status
	current.AssignedAnalyst = nil
	if c.AssignedAnalyst != nil {
		assigned := *c.AssignedAnalyst
		current.AssignedAnalyst = &assigned
	}
	current.UpdatedAt = c.UpdatedAt
	return nil
}

func (r memoryCases) AppendNote(ctx context.Context, id types.ID, note casedomain.Note) error {
	s := r.tx.store
	current, ok := s.cases[id]
	if !ok {
		return errors.NotFound("case", id.String())
	}

	n := len(current.Notes)
	err := r.tx.write(func() {
		restored := s.cases[id]
		restored.Notes = restored.Notes[:n:n]
	})
	if err != nil {
		return err
	}

	current.Notes = append(current.Notes, note)
	return nil
}

func (r memoryCases) Delete(ctx context.Context, id types.ID) error {
	s := r.tx.store
	current, ok := s.cases[id]
	if !ok {
		return errors.NotFound("case", id.String())
	}
	if err := r.tx.write(func() { s.cases[id] = current }); err != nil {
		return err
	}
	delete(s.cases, id)
	return nil
}

// --- Incidents ---

type memoryIncidents struct {
	tx *memoryTx
}

func (r memoryIncidents) NextID(ctx context.Context) (types.ID, error) {
	s := r.tx.store
	if err := r.tx.write(func() { s.incidentSeq-- }); err != nil {
		return 0, err
	}
	s.incidentSeq++
	return types.ID(s.incidentSeq), nil
}

func (r memoryIncidents) Save(ctx context.Context, report *incidentdomain.IncidentReport) error {
	s := r.tx.store
	if _, exists := s.incidents[report.ID]; exists {
		return errors.Invariant("incident id %d already in use", report.ID)
	}
	if err := r.tx.write(func() { delete(s.incidents, report.ID) }); err != nil {
		return err
	}
	stored := *report
	s.incidents[report.ID] = &stored
	return nil
}

func (r memoryIncidents) FindByID(ctx context.Context, id types.ID) (*incidentdomain.IncidentReport, error) {
	report, ok := r.tx.store.incidents[id]
	if !ok {
		return nil, errors.NotFound("incident", id.String())
	}
	out := *report
	return &out, nil
}

func (r memoryIncidents) List(ctx context.Context) ([]incidentdomain.IncidentReport, error) {
	out := make([]incidentdomain.IncidentReport, 0, len(r.tx.store.incidents))
	for _, report := range r.tx.store.incidents {
		out = append(out, *report)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Operators ---

type memoryOperators struct {
	tx *memoryTx
}

func (r memoryOperators) NextPosition(ctx context.Context) (int64, error) {
	if !r.tx.writable {
		return 0, errReadOnly
	}
	return int64(len(r.tx.store.operatorOrder) + 1), nil
}

func (r memoryOperators) Save(ctx context.Context, p *registrydomain.OperatorProfile) error {
	s := r.tx.store
	if _, exists := s.operators[p.Principal]; exists {
		return errors.AlreadyExists("operator", p.Principal.String())
	}
	if p.Position != int64(len(s.operatorOrder)+1) {
		return errors.Invariant("registration position %d does not follow %d", p.Position, len(s.operatorOrder))
	}

	n := len(s.operatorOrder)
	err := r.tx.write(func() {
		delete(s.operators, p.Principal)
		s.operatorOrder = s.operatorOrder[:n:n]
	})
	if err != nil {
		return err
	}

	stored := *p
	s.operators[p.Principal] = &stored
	s.operatorOrder = append(s.operatorOrder, p.Principal)
	return nil
}

func (r memoryOperators) FindByPrincipal(ctx context.Context, principal types.Principal) (*registrydomain.OperatorProfile, error) {
	p, ok := r.tx.store.operators[principal]
	if !ok {
		return nil, errors.NotFound("operator", principal.String())
	}
	out := *p
	return &out, nil
}

func (r memoryOperators) List(ctx context.Context) ([]registrydomain.OperatorProfile, error) {
	s := r.tx.store
	out := make([]registrydomain.OperatorProfile, 0, len(s.operatorOrder))
	for _, principal := range s.operatorOrder {
		out = append(out, *s.operators[principal])
	}
	return out, nil
}

func (r memoryOperators) UpdateRole(ctx context.Context, principal types.Principal, role auth.Role) error {
	s := r.tx.store
	current, ok := s.operators[principal]
	if !ok {
		return errors.NotFound("operator", principal.String())
	}

	prev := current.Role
	if err := r.tx.write(func() { s.operators[principal].Role = prev }); err != nil {
		return err
	}
	current.Role = role
	return nil
}
