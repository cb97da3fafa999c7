// Package enginetest provides in-memory fakes for exercising the
// transition executor without a database. The fakes ignore the *gorm.DB
// transaction handle; rollback semantics are simulated by snapshotting
// participating stores before the transaction body runs and restoring
// them when it fails.
package enginetest

import (
	"context"
	"sync"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TxStore is a store whose state participates in fake transactions.
type TxStore interface {
	Snapshot() any
	Restore(snap any)
}

// DB is a fake engine.Database. A failed transaction restores every
// registered store to its pre-transaction state.
type DB struct {
	stores []TxStore
}

// NewDB creates a fake transactional database over the given stores.
func NewDB(stores ...TxStore) *DB {
	return &DB{stores: stores}
}

func (d *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snaps := make([]any, len(d.stores))
	for i, s := range d.stores {
		snaps[i] = s.Snapshot()
	}
	if err := fn(nil); err != nil {
		for i, s := range d.stores {
			s.Restore(snaps[i])
		}
		return err
	}
	return nil
}

// MemoryLedger is an in-memory ledger.Store backed by real Resource
// arithmetic, so quantity and settlement rules behave exactly as in
// production.
type MemoryLedger struct {
	mu        sync.Mutex
	resources map[uuid.UUID]*ledger.Resource
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{resources: make(map[uuid.UUID]*ledger.Resource)}
}

func (m *MemoryLedger) Snapshot() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[uuid.UUID]ledger.Resource, len(m.resources))
	for id, res := range m.resources {
		snap[id] = *res
	}
	return snap
}

func (m *MemoryLedger) Restore(snap any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = make(map[uuid.UUID]*ledger.Resource)
	for id, res := range snap.(map[uuid.UUID]ledger.Resource) {
		r := res
		m.resources[id] = &r
	}
}

func (m *MemoryLedger) Create(ctx context.Context, res *ledger.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	m.resources[res.ID] = res
	return nil
}

func (m *MemoryLedger) CreateInTx(ctx context.Context, tx *gorm.DB, res *ledger.Resource) error {
	return m.Create(ctx, res)
}

func (m *MemoryLedger) Get(ctx context.Context, clinicID, id uuid.UUID) (*ledger.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[id]
	if !ok || res.ClinicID != clinicID {
		return nil, ledger.ErrResourceNotFound
	}
	copied := *res
	return &copied, nil
}

func (m *MemoryLedger) List(ctx context.Context, clinicID uuid.UUID, kind ledger.ResourceKind) ([]*ledger.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Resource
	for _, res := range m.resources {
		if res.ClinicID != clinicID {
			continue
		}
		if kind != "" && res.Kind != kind {
			continue
		}
		copied := *res
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MemoryLedger) Restock(ctx context.Context, clinicID, id uuid.UUID, qty int64) (*ledger.Resource, error) {
	if qty <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[id]
	if !ok || res.ClinicID != clinicID {
		return nil, ledger.ErrResourceNotFound
	}
	if res.Kind != ledger.ResourceKindStock {
		return nil, ledger.ErrResourceKindMismatch
	}
	res.Capacity += qty
	copied := *res
	return &copied, nil
}

func (m *MemoryLedger) Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int64) (*ledger.Resource, error) {
	return m.mutate(id, func(res *ledger.Resource) error { return res.Consume(qty) })
}

func (m *MemoryLedger) Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int64) (*ledger.Resource, error) {
	return m.mutate(id, func(res *ledger.Resource) error { return res.Release(qty) })
}

func (m *MemoryLedger) Settle(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount int64) (*ledger.Resource, error) {
	return m.mutate(id, func(res *ledger.Resource) error { return res.Settle(amount) })
}

func (m *MemoryLedger) mutate(id uuid.UUID, fn func(res *ledger.Resource) error) (*ledger.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.resources[id]
	if !ok {
		return nil, ledger.ErrResourceNotFound
	}
	if err := fn(res); err != nil {
		return nil, err
	}
	copied := *res
	return &copied, nil
}

// MemoryRecords is an in-memory transition record repository.
type MemoryRecords struct {
	mu      sync.Mutex
	records []*engine.TransitionRecord

	// Err, when set, is returned from Create to simulate write failures.
	Err error
}

// NewMemoryRecords creates an empty in-memory record repository.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{}
}

func (m *MemoryRecords) Snapshot() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make([]*engine.TransitionRecord, len(m.records))
	copy(snap, m.records)
	return snap
}

func (m *MemoryRecords) Restore(snap any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = snap.([]*engine.TransitionRecord)
}

func (m *MemoryRecords) Create(ctx context.Context, tx *gorm.DB, rec *engine.TransitionRecord) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryRecords) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*engine.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*engine.TransitionRecord
	for _, rec := range m.records {
		if rec.AggregateID == aggregateID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type storedAggregate struct {
	clinicID uuid.UUID
	agg      engine.Aggregate
}

// MemoryStore is an in-memory engine.AggregateStore. LoadForUpdate hands
// the executor a clone, so a failed transaction never leaks partial
// mutations into the stored aggregate.
type MemoryStore struct {
	mu    sync.Mutex
	aggs  map[uuid.UUID]storedAggregate
	clone func(engine.Aggregate) engine.Aggregate

	// SaveErr, when set, is returned from Save to simulate version conflicts.
	SaveErr error
}

// NewMemoryStore creates an aggregate store using clone to copy aggregates
// on load and save.
func NewMemoryStore(clone func(engine.Aggregate) engine.Aggregate) *MemoryStore {
	return &MemoryStore{
		aggs:  make(map[uuid.UUID]storedAggregate),
		clone: clone,
	}
}

// Put seeds an aggregate under a clinic.
func (s *MemoryStore) Put(clinicID uuid.UUID, agg engine.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs[agg.AggregateID()] = storedAggregate{clinicID: clinicID, agg: s.clone(agg)}
}

// Get returns the stored aggregate for assertions.
func (s *MemoryStore) Get(id uuid.UUID) engine.Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.aggs[id]
	if !ok {
		return nil
	}
	return stored.agg
}

func (s *MemoryStore) LoadForUpdate(ctx context.Context, tx *gorm.DB, clinicID, id uuid.UUID) (engine.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.aggs[id]
	if !ok || stored.clinicID != clinicID {
		return nil, engine.ErrAggregateNotFound
	}
	return s.clone(stored.agg), nil
}

func (s *MemoryStore) Save(ctx context.Context, tx *gorm.DB, agg engine.Aggregate) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.aggs[agg.AggregateID()]
	stored.agg = s.clone(agg)
	s.aggs[agg.AggregateID()] = stored
	return nil
}
