package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/engine/enginetest"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	kindWork engine.Kind = "work_order"
	kindBill engine.Kind = "bill"
)

var clinicID = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")

type workOrder struct {
	id    uuid.UUID
	state engine.State
	items []engine.LineItem
	total int64
}

func (w *workOrder) AggregateID() uuid.UUID        { return w.id }
func (w *workOrder) AggregateKind() engine.Kind    { return kindWork }
func (w *workOrder) CurrentState() engine.State    { return w.state }
func (w *workOrder) LedgerItems() []engine.LineItem { return w.items }
func (w *workOrder) TotalAmount() int64            { return w.total }

func (w *workOrder) SetCurrentState(s engine.State, _ time.Time) { w.state = s }

func cloneWorkOrder(agg engine.Aggregate) engine.Aggregate {
	w := agg.(*workOrder)
	copied := *w
	copied.items = append([]engine.LineItem(nil), w.items...)
	return &copied
}

type bill struct {
	id           uuid.UUID
	state        engine.State
	total        int64
	settled      int64
	receivableID uuid.UUID
}

func (b *bill) AggregateID() uuid.UUID         { return b.id }
func (b *bill) AggregateKind() engine.Kind     { return kindBill }
func (b *bill) CurrentState() engine.State     { return b.state }
func (b *bill) LedgerItems() []engine.LineItem { return nil }
func (b *bill) TotalAmount() int64             { return b.total }
func (b *bill) FaceValue() int64               { return b.total }
func (b *bill) SettledAmount() int64           { return b.settled }
func (b *bill) ReceivableResourceID() uuid.UUID { return b.receivableID }

func (b *bill) SetCurrentState(s engine.State, _ time.Time)  { b.state = s }
func (b *bill) ApplySettlement(amount int64, _ time.Time)    { b.settled += amount }

func cloneBill(agg engine.Aggregate) engine.Aggregate {
	b := agg.(*bill)
	copied := *b
	return &copied
}

func workDefinition() engine.Definition {
	return engine.Definition{
		Kind:    kindWork,
		Initial: "draft",
		Transitions: []engine.Transition{
			{From: "draft", To: "reserved", Effect: engine.EffectConsume},
			{From: "draft", To: "cancelled", Effect: engine.EffectRelease},
			{From: "reserved", To: "done", Effect: engine.EffectNone, Critical: true},
			{From: "reserved", To: "cancelled", Effect: engine.EffectRelease},
		},
	}
}

func billDefinition() engine.Definition {
	return engine.Definition{
		Kind:    kindBill,
		Initial: "open",
		Transitions: []engine.Transition{
			{From: "open", To: "partial", Effect: engine.EffectSettle},
			{From: "open", To: "paid", Effect: engine.EffectSettle},
			{From: "partial", To: "partial", Effect: engine.EffectSettle},
			{From: "partial", To: "paid", Effect: engine.EffectSettle},
		},
		Settled:        "paid",
		PartialSettled: "partial",
	}
}

type fixture struct {
	exec    *engine.Executor
	ledger  *enginetest.MemoryLedger
	records *enginetest.MemoryRecords
	store   *enginetest.MemoryStore
}

func newFixture(t *testing.T, defs []engine.Definition, clone func(engine.Aggregate) engine.Aggregate) *fixture {
	t.Helper()

	registry, err := engine.NewRegistry(defs...)
	require.NoError(t, err)

	led := enginetest.NewMemoryLedger()
	records := enginetest.NewMemoryRecords()
	store := enginetest.NewMemoryStore(clone)
	db := enginetest.NewDB(led, records)

	exec := engine.NewExecutor(db, registry, led, records, zap.NewNop(), nil)
	for _, def := range defs {
		exec.RegisterStore(def.Kind, store)
	}

	return &fixture{exec: exec, ledger: led, records: records, store: store}
}

func (f *fixture) addStock(t *testing.T, id uuid.UUID, capacity, consumed int64) {
	t.Helper()
	require.NoError(t, f.ledger.Create(context.Background(), &ledger.Resource{
		ID:       id,
		ClinicID: clinicID,
		Kind:     ledger.ResourceKindStock,
		Name:     "stock-" + id.String()[:8],
		Capacity: capacity,
		Consumed: consumed,
	}))
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) *ledger.Resource {
	t.Helper()
	res, err := f.ledger.Get(context.Background(), clinicID, id)
	require.NoError(t, err)
	return res
}

func TestExecutorConsume(t *testing.T) {
	resA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	resB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	newOrder := func() *workOrder {
		return &workOrder{
			id:    uuid.New(),
			state: "draft",
			total: 5000,
			items: []engine.LineItem{
				{ResourceID: resB, Quantity: 2, Amount: 2000},
				{ResourceID: resA, Quantity: 3, Amount: 3000},
			},
		}
	}

	t.Run("draws down every line item", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		f.addStock(t, resA, 10, 0)
		f.addStock(t, resB, 10, 0)
		order := newOrder()
		f.store.Put(clinicID, order)

		got, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "reserved", engine.Payload{Actor: "staff-1"})
		require.NoError(t, err)
		assert.Equal(t, engine.State("reserved"), got.CurrentState())

		assert.Equal(t, int64(3), f.stock(t, resA).Consumed)
		assert.Equal(t, int64(2), f.stock(t, resB).Consumed)

		recs, err := f.exec.History(context.Background(), order.id)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, engine.State("draft"), recs[0].FromState)
		assert.Equal(t, engine.State("reserved"), recs[0].ToState)
		assert.Equal(t, "staff-1", recs[0].Actor)
		assert.Empty(t, recs[0].Digest, "non-critical transitions carry no digest")
	})

	t.Run("insufficient stock aborts without partial consumption", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		f.addStock(t, resA, 10, 8) // 2 available, order wants 3
		f.addStock(t, resB, 10, 0)
		order := newOrder()
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "reserved", engine.Payload{Actor: "staff-1"})
		var stockErr *ledger.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, resA, stockErr.ResourceID)
		assert.Equal(t, int64(3), stockErr.Requested)
		assert.Equal(t, int64(2), stockErr.Available)

		// Neither resource moved, even though B was locked first by
		// item order before sorting.
		assert.Equal(t, int64(8), f.stock(t, resA).Consumed)
		assert.Equal(t, int64(0), f.stock(t, resB).Consumed)

		assert.Equal(t, engine.State("draft"), f.store.Get(order.id).CurrentState())
		recs, err := f.exec.History(context.Background(), order.id)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("missing resource aborts the transition", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		f.addStock(t, resA, 10, 0)
		order := newOrder() // resB never created
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "reserved", engine.Payload{})
		assert.ErrorIs(t, err, ledger.ErrResourceNotFound)
		assert.Equal(t, int64(0), f.stock(t, resA).Consumed)
		assert.Equal(t, engine.State("draft"), f.store.Get(order.id).CurrentState())
	})
}

func TestExecutorRelease(t *testing.T) {
	resA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")

	t.Run("requires a reason", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		order := &workOrder{id: uuid.New(), state: "draft"}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "cancelled", engine.Payload{Actor: "staff-1"})
		assert.ErrorIs(t, err, engine.ErrValidation)
	})

	t.Run("returns consumed stock", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		f.addStock(t, resA, 10, 0)
		order := &workOrder{
			id:    uuid.New(),
			state: "reserved",
			items: []engine.LineItem{{ResourceID: resA, Quantity: 4}},
		}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "cancelled", engine.Payload{Reason: "patient declined", Actor: "staff-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), f.stock(t, resA).Consumed)
		assert.Equal(t, engine.State("cancelled"), f.store.Get(order.id).CurrentState())
	})

	t.Run("skips the ledger before any consumption", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		f.addStock(t, resA, 10, 5)
		order := &workOrder{
			id:    uuid.New(),
			state: "draft",
			items: []engine.LineItem{{ResourceID: resA, Quantity: 4}},
		}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "cancelled", engine.Payload{Reason: "duplicate entry"})
		require.NoError(t, err)
		// The draft never consumed anything, so nothing comes back.
		assert.Equal(t, int64(5), f.stock(t, resA).Consumed)
	})
}

func TestExecutorSettle(t *testing.T) {
	recvID := uuid.MustParse("00000000-0000-0000-0000-0000000000fe")

	newBillFixture := func(t *testing.T, settled int64, state engine.State) (*fixture, *bill) {
		f := newFixture(t, []engine.Definition{billDefinition()}, cloneBill)
		require.NoError(t, f.ledger.Create(context.Background(), &ledger.Resource{
			ID:       recvID,
			ClinicID: clinicID,
			Kind:     ledger.ResourceKindReceivable,
			Name:     "receivable",
			Capacity: 10000,
			Consumed: settled,
		}))
		b := &bill{id: uuid.New(), state: state, total: 10000, settled: settled, receivableID: recvID}
		f.store.Put(clinicID, b)
		return f, b
	}

	t.Run("partial payment lands on the partial state", func(t *testing.T) {
		f, b := newBillFixture(t, 0, "open")

		got, err := f.exec.Execute(context.Background(), clinicID, kindBill, b.id, "paid", engine.Payload{Amount: 4000, Actor: "staff-1"})
		require.NoError(t, err)
		// The caller asked for paid; the balance says otherwise.
		assert.Equal(t, engine.State("partial"), got.CurrentState())
		assert.Equal(t, int64(4000), got.(*bill).settled)

		recs, err := f.exec.History(context.Background(), b.id)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, engine.State("partial"), recs[0].ToState)
	})

	t.Run("payment clearing the balance lands on paid", func(t *testing.T) {
		f, b := newBillFixture(t, 4000, "partial")

		got, err := f.exec.Execute(context.Background(), clinicID, kindBill, b.id, "paid", engine.Payload{Amount: 6000})
		require.NoError(t, err)
		assert.Equal(t, engine.State("paid"), got.CurrentState())
		assert.Equal(t, int64(10000), got.(*bill).settled)
	})

	t.Run("rejects overpayment", func(t *testing.T) {
		f, b := newBillFixture(t, 4000, "partial")

		_, err := f.exec.Execute(context.Background(), clinicID, kindBill, b.id, "paid", engine.Payload{Amount: 6001})
		var excess *ledger.ExcessPaymentError
		require.ErrorAs(t, err, &excess)
		assert.Equal(t, int64(6001), excess.Amount)
		assert.Equal(t, int64(6000), excess.Outstanding)
		assert.Equal(t, int64(4000), f.store.Get(b.id).(*bill).settled)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		f, b := newBillFixture(t, 0, "open")

		for _, amount := range []int64{0, -500} {
			_, err := f.exec.Execute(context.Background(), clinicID, kindBill, b.id, "paid", engine.Payload{Amount: amount})
			assert.ErrorIs(t, err, engine.ErrValidation)
		}
	})

	t.Run("settling a non-settleable aggregate fails", func(t *testing.T) {
		def := workDefinition()
		def.Transitions = append(def.Transitions, engine.Transition{From: "done", To: "billed", Effect: engine.EffectSettle})
		def.Settled = "billed"
		def.PartialSettled = "done"
		f := newFixture(t, []engine.Definition{def}, cloneWorkOrder)
		order := &workOrder{id: uuid.New(), state: "done"}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "billed", engine.Payload{Amount: 100})
		assert.ErrorIs(t, err, engine.ErrValidation)
	})
}

func TestExecutorGuardAndHook(t *testing.T) {
	t.Run("guard veto runs before any side effect", func(t *testing.T) {
		guardErr := errors.New("not allowed today")
		def := workDefinition()
		def.Transitions[0].Guard = func(_ engine.Aggregate, _ engine.Payload) error { return guardErr }

		resA := uuid.New()
		f := newFixture(t, []engine.Definition{def}, cloneWorkOrder)
		f.addStock(t, resA, 10, 0)
		order := &workOrder{id: uuid.New(), state: "draft", items: []engine.LineItem{{ResourceID: resA, Quantity: 1}}}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "reserved", engine.Payload{})
		assert.ErrorIs(t, err, guardErr)
		assert.Equal(t, int64(0), f.stock(t, resA).Consumed)
	})

	t.Run("hook failure rolls back the ledger effect", func(t *testing.T) {
		hookErr := errors.New("side table write failed")
		def := workDefinition()
		def.Transitions[0].Hook = func(_ context.Context, _ *gorm.DB, _ engine.Aggregate, _ engine.Payload, _ time.Time) error {
			return hookErr
		}

		resA := uuid.New()
		f := newFixture(t, []engine.Definition{def}, cloneWorkOrder)
		f.addStock(t, resA, 10, 0)
		order := &workOrder{id: uuid.New(), state: "draft", items: []engine.LineItem{{ResourceID: resA, Quantity: 2}}}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "reserved", engine.Payload{})
		assert.ErrorIs(t, err, hookErr)
		assert.Equal(t, int64(0), f.stock(t, resA).Consumed)
		assert.Equal(t, engine.State("draft"), f.store.Get(order.id).CurrentState())
	})

	t.Run("hook sees the aggregate before the state flips", func(t *testing.T) {
		var seen engine.State
		def := workDefinition()
		def.Transitions[2].Hook = func(_ context.Context, _ *gorm.DB, agg engine.Aggregate, _ engine.Payload, _ time.Time) error {
			seen = agg.CurrentState()
			return nil
		}

		f := newFixture(t, []engine.Definition{def}, cloneWorkOrder)
		order := &workOrder{id: uuid.New(), state: "reserved"}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "done", engine.Payload{Actor: "staff-1"})
		require.NoError(t, err)
		assert.Equal(t, engine.State("reserved"), seen)
	})
}

func TestExecutorCriticalDigest(t *testing.T) {
	f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
	order := &workOrder{id: uuid.New(), state: "reserved", total: 7500}
	f.store.Put(clinicID, order)

	_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "done", engine.Payload{Actor: "staff-1"})
	require.NoError(t, err)

	recs, err := f.exec.History(context.Background(), order.id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Regexp(t, "^[0-9a-f]{64}$", recs[0].Digest)
}

func TestExecutorFailures(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		_, err := f.exec.Execute(context.Background(), clinicID, "mystery", uuid.New(), "anywhere", engine.Payload{})
		assert.ErrorIs(t, err, engine.ErrUnknownKind)
	})

	t.Run("aggregate not found", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, uuid.New(), "reserved", engine.Payload{})
		assert.ErrorIs(t, err, engine.ErrAggregateNotFound)
	})

	t.Run("wrong clinic behaves as not found", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		order := &workOrder{id: uuid.New(), state: "draft"}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), uuid.New(), kindWork, order.id, "reserved", engine.Payload{})
		assert.ErrorIs(t, err, engine.ErrAggregateNotFound)
	})

	t.Run("invalid transition leaves everything untouched", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		order := &workOrder{id: uuid.New(), state: "done"}
		f.store.Put(clinicID, order)

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "draft", engine.Payload{})
		assert.ErrorIs(t, err, engine.ErrInvalidTransition)
		assert.Equal(t, engine.State("done"), f.store.Get(order.id).CurrentState())
	})

	t.Run("save conflict rolls back ledger and records", func(t *testing.T) {
		resA := uuid.New()
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		f.addStock(t, resA, 10, 0)
		order := &workOrder{id: uuid.New(), state: "draft", items: []engine.LineItem{{ResourceID: resA, Quantity: 2}}}
		f.store.Put(clinicID, order)
		f.store.SaveErr = engine.ErrConflict

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "reserved", engine.Payload{})
		assert.ErrorIs(t, err, engine.ErrConflict)
		assert.Equal(t, int64(0), f.stock(t, resA).Consumed)

		recs, lerr := f.exec.History(context.Background(), order.id)
		require.NoError(t, lerr)
		assert.Empty(t, recs)
	})

	t.Run("record write failure aborts the transition", func(t *testing.T) {
		f := newFixture(t, []engine.Definition{workDefinition()}, cloneWorkOrder)
		order := &workOrder{id: uuid.New(), state: "reserved"}
		f.store.Put(clinicID, order)
		f.records.Err = errors.New("records table unavailable")

		_, err := f.exec.Execute(context.Background(), clinicID, kindWork, order.id, "done", engine.Payload{})
		assert.ErrorContains(t, err, "append transition record")
		assert.Equal(t, engine.State("reserved"), f.store.Get(order.id).CurrentState())
	})
}
