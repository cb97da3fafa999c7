package shop

import (
	"context"
	"testing"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/engine/enginetest"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testClinicID = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")

func cloneShopOrder(agg engine.Aggregate) engine.Aggregate {
	o := agg.(*ShopOrder)
	copied := *o
	copied.Items = append([]ShopOrderItem(nil), o.Items...)
	return &copied
}

// fakeOrderStore adapts the in-memory aggregate store to OrderStore.
type fakeOrderStore struct {
	*enginetest.MemoryStore
}

func (f *fakeOrderStore) Create(ctx context.Context, order *ShopOrder) error {
	f.Put(order.ClinicID, order)
	return nil
}

func (f *fakeOrderStore) Get(ctx context.Context, clinicID, id uuid.UUID) (*ShopOrder, error) {
	agg, err := f.LoadForUpdate(ctx, nil, clinicID, id)
	if err != nil {
		return nil, err
	}
	return agg.(*ShopOrder), nil
}

func (f *fakeOrderStore) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*ShopOrder, int64, error) {
	return nil, 0, nil
}

func (f *fakeOrderStore) UpdateNotes(ctx context.Context, clinicID, id uuid.UUID, notes string) error {
	order, err := f.Get(ctx, clinicID, id)
	if err != nil {
		return err
	}
	order.Notes = notes
	f.Put(clinicID, order)
	return nil
}

type testEnv struct {
	service *Service
	ledger  *enginetest.MemoryLedger
	store   *fakeOrderStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry, err := engine.NewRegistry(Definition())
	require.NoError(t, err)

	led := enginetest.NewMemoryLedger()
	records := enginetest.NewMemoryRecords()
	store := &fakeOrderStore{MemoryStore: enginetest.NewMemoryStore(cloneShopOrder)}
	db := enginetest.NewDB(led, records)

	exec := engine.NewExecutor(db, registry, led, records, zap.NewNop(), nil)
	exec.RegisterStore(engine.KindShopOrder, store)

	return &testEnv{
		service: NewService(store, exec, zap.NewNop()),
		ledger:  led,
		store:   store,
	}
}

func (e *testEnv) addStock(t *testing.T, name string, capacity, consumed int64) uuid.UUID {
	t.Helper()
	res := &ledger.Resource{
		ID:       uuid.New(),
		ClinicID: testClinicID,
		Kind:     ledger.ResourceKindStock,
		Name:     name,
		Capacity: capacity,
		Consumed: consumed,
	}
	require.NoError(t, e.ledger.Create(context.Background(), res))
	return res.ID
}

func (e *testEnv) consumed(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	res, err := e.ledger.Get(context.Background(), testClinicID, id)
	require.NoError(t, err)
	return res.Consumed
}

func TestServiceCreate(t *testing.T) {
	env := newTestEnv(t)
	resID := env.addStock(t, "ibuprofen 200mg", 50, 0)
	ctx := context.Background()

	t.Run("computes line subtotals and total", func(t *testing.T) {
		order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "A. Nguyen", "12 High St", []NewOrderItem{
			{ResourceID: resID, Name: "ibuprofen 200mg", Quantity: 3, UnitPrice: 1250, Discount: 250},
			{ResourceID: resID, Name: "ibuprofen 200mg", Quantity: 1, UnitPrice: 1250},
		})
		require.NoError(t, err)

		assert.Equal(t, StatePendingPayment, order.State)
		assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{5}$`, order.Number)
		require.Len(t, order.Items, 2)
		assert.Equal(t, int64(3500), order.Items[0].Subtotal)
		assert.Equal(t, int64(1250), order.Items[1].Subtotal)
		assert.Equal(t, int64(4750), order.Total)

		// Creation alone never touches stock.
		assert.Equal(t, int64(0), env.consumed(t, resID))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", nil)
		assert.ErrorIs(t, err, ErrNoItems)

		_, err = env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
			{ResourceID: resID, Quantity: 0, UnitPrice: 100},
		})
		assert.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
			{ResourceID: resID, Quantity: 1, UnitPrice: -5},
		})
		assert.ErrorIs(t, err, ErrInvalidPrice)

		_, err = env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
			{ResourceID: resID, Quantity: 1, UnitPrice: 100, Discount: 150},
		})
		assert.ErrorIs(t, err, ErrInvalidDiscount)

		// Each is a validation error for the HTTP layer.
		assert.ErrorIs(t, err, engine.ErrValidation)
	})
}

func TestServiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	resID := env.addStock(t, "bandage roll", 20, 0)
	ctx := context.Background()

	order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "B. Okafor", "3 Clinic Way", []NewOrderItem{
		{ResourceID: resID, Name: "bandage roll", Quantity: 4, UnitPrice: 600},
	})
	require.NoError(t, err)

	order, err = env.service.Pay(ctx, testClinicID, order.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatePaid, order.State)
	assert.Equal(t, int64(0), env.consumed(t, resID), "payment does not consume stock")

	order, err = env.service.StartProcessing(ctx, testClinicID, order.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, order.State)
	assert.Equal(t, int64(4), env.consumed(t, resID))

	order, err = env.service.Ship(ctx, testClinicID, order.ID, "DHL", "JD014600003", "staff-2")
	require.NoError(t, err)
	assert.Equal(t, StateShipped, order.State)
	assert.Equal(t, "DHL", order.Carrier)
	assert.Equal(t, "JD014600003", order.TrackingNo)

	order, err = env.service.Deliver(ctx, testClinicID, order.ID, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, order.State)

	records, err := env.service.History(ctx, testClinicID, order.ID)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, StatePendingPayment, records[0].FromState)
	assert.Equal(t, StateDelivered, records[3].ToState)
}

func TestServiceShipRequiresCarrier(t *testing.T) {
	env := newTestEnv(t)
	resID := env.addStock(t, "saline", 10, 0)
	ctx := context.Background()

	order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
		{ResourceID: resID, Name: "saline", Quantity: 1, UnitPrice: 900},
	})
	require.NoError(t, err)
	_, err = env.service.Pay(ctx, testClinicID, order.ID, "staff-1")
	require.NoError(t, err)
	_, err = env.service.StartProcessing(ctx, testClinicID, order.ID, "staff-1")
	require.NoError(t, err)

	_, err = env.service.Ship(ctx, testClinicID, order.ID, "", "", "staff-1")
	assert.ErrorIs(t, err, engine.ErrValidation)

	got, err := env.service.Get(ctx, testClinicID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, got.State)
}

func TestServiceProcessingRejectsWholesale(t *testing.T) {
	env := newTestEnv(t)
	// Resource A has 1 unit available, the order wants 2.
	resA := env.addStock(t, "gauze pads", 5, 4)
	resB := env.addStock(t, "medical tape", 10, 0)
	ctx := context.Background()

	order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
		{ResourceID: resA, Name: "gauze pads", Quantity: 2, UnitPrice: 300},
		{ResourceID: resB, Name: "medical tape", Quantity: 1, UnitPrice: 450},
	})
	require.NoError(t, err)
	_, err = env.service.Pay(ctx, testClinicID, order.ID, "staff-1")
	require.NoError(t, err)

	_, err = env.service.StartProcessing(ctx, testClinicID, order.ID, "staff-1")
	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, resA, stockErr.ResourceID)

	// No partial consumption: both resources are exactly as before.
	assert.Equal(t, int64(4), env.consumed(t, resA))
	assert.Equal(t, int64(0), env.consumed(t, resB))

	got, err := env.service.Get(ctx, testClinicID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePaid, got.State)
}

func TestServiceCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("from processing releases all stock", func(t *testing.T) {
		env := newTestEnv(t)
		resA := env.addStock(t, "gloves", 30, 0)
		resB := env.addStock(t, "masks", 30, 0)

		order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
			{ResourceID: resA, Name: "gloves", Quantity: 5, UnitPrice: 200},
			{ResourceID: resB, Name: "masks", Quantity: 2, UnitPrice: 150},
		})
		require.NoError(t, err)
		_, err = env.service.Pay(ctx, testClinicID, order.ID, "staff-1")
		require.NoError(t, err)
		_, err = env.service.StartProcessing(ctx, testClinicID, order.ID, "staff-1")
		require.NoError(t, err)
		require.Equal(t, int64(5), env.consumed(t, resA))

		order, err = env.service.Cancel(ctx, testClinicID, order.ID, "customer request", "staff-1")
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, order.State)
		assert.Equal(t, int64(0), env.consumed(t, resA))
		assert.Equal(t, int64(0), env.consumed(t, resB))

		// Cancelled is terminal.
		_, err = env.service.Pay(ctx, testClinicID, order.ID, "staff-1")
		assert.ErrorIs(t, err, engine.ErrInvalidTransition)
		_, err = env.service.Cancel(ctx, testClinicID, order.ID, "again", "staff-1")
		assert.ErrorIs(t, err, engine.ErrInvalidTransition)
	})

	t.Run("before payment touches no stock", func(t *testing.T) {
		env := newTestEnv(t)
		resID := env.addStock(t, "syringes", 10, 3)

		order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
			{ResourceID: resID, Name: "syringes", Quantity: 2, UnitPrice: 100},
		})
		require.NoError(t, err)

		order, err = env.service.Cancel(ctx, testClinicID, order.ID, "duplicate order", "staff-1")
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, order.State)
		assert.Equal(t, int64(3), env.consumed(t, resID))
	})

	t.Run("requires a reason", func(t *testing.T) {
		env := newTestEnv(t)
		resID := env.addStock(t, "cotton", 10, 0)

		order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
			{ResourceID: resID, Name: "cotton", Quantity: 1, UnitPrice: 50},
		})
		require.NoError(t, err)

		_, err = env.service.Cancel(ctx, testClinicID, order.ID, "", "staff-1")
		assert.ErrorIs(t, err, engine.ErrValidation)
	})
}

func TestServiceRefundAfterDelivery(t *testing.T) {
	env := newTestEnv(t)
	resID := env.addStock(t, "thermometer", 10, 0)
	ctx := context.Background()

	order, err := env.service.Create(ctx, testClinicID, uuid.Nil, "", "", []NewOrderItem{
		{ResourceID: resID, Name: "thermometer", Quantity: 1, UnitPrice: 2400},
	})
	require.NoError(t, err)
	for _, step := range []func(context.Context, uuid.UUID, uuid.UUID, string) (*ShopOrder, error){
		env.service.Pay, env.service.StartProcessing,
	} {
		_, err = step(ctx, testClinicID, order.ID, "staff-1")
		require.NoError(t, err)
	}
	_, err = env.service.Ship(ctx, testClinicID, order.ID, "UPS", "1Z999AA10123456784", "staff-1")
	require.NoError(t, err)
	_, err = env.service.Deliver(ctx, testClinicID, order.ID, "staff-1")
	require.NoError(t, err)

	order, err = env.service.Refund(ctx, testClinicID, order.ID, "returned damaged", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StateRefunded, order.State)
	assert.Equal(t, int64(0), env.consumed(t, resID))

	records, err := env.service.History(ctx, testClinicID, order.ID)
	require.NoError(t, err)
	last := records[len(records)-1]
	assert.Equal(t, StateRefunded, last.ToState)
	assert.Regexp(t, "^[0-9a-f]{64}$", last.Digest, "post-delivery refunds are digested")
	assert.Equal(t, "returned damaged", last.Reason)
}
