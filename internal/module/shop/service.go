package shop

import (
	"context"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/utils/random"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the service needs. *Repository
// implements it.
type OrderStore interface {
	engine.AggregateStore
	Create(ctx context.Context, order *ShopOrder) error
	Get(ctx context.Context, clinicID, id uuid.UUID) (*ShopOrder, error)
	List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*ShopOrder, int64, error)
	UpdateNotes(ctx context.Context, clinicID, id uuid.UUID, notes string) error
}

// NewOrderItem is one line of a new order.
type NewOrderItem struct {
	ResourceID uuid.UUID
	Name       string
	Quantity   int64
	UnitPrice  int64
	Discount   int64
}

// Service implements shop order operations. All state changes go through
// the transition executor; the service never mutates state directly.
type Service struct {
	store  OrderStore
	exec   *engine.Executor
	logger *zap.Logger
}

// NewService creates a new shop order service.
func NewService(store OrderStore, exec *engine.Executor, logger *zap.Logger) *Service {
	return &Service{store: store, exec: exec, logger: logger}
}

// Create places a new order in its initial state.
func (s *Service) Create(ctx context.Context, clinicID, patientID uuid.UUID, recipient, address string, items []NewOrderItem) (*ShopOrder, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	initial, err := s.exec.Registry().InitialState(engine.KindShopOrder)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &ShopOrder{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		Number:         newOrderNumber(now),
		State:          initial,
		PatientID:      patientID,
		Recipient:      recipient,
		Address:        address,
		Version:        1,
		StateChangedAt: now,
	}

	for _, item := range items {
		line, err := buildLine(order.ID, item)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, line)
		order.Total += line.Subtotal
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("shop order created",
		zap.String("order_id", order.ID.String()),
		zap.String("number", order.Number),
		zap.Int64("total", order.Total),
		zap.Int("items", len(order.Items)),
	)

	return order, nil
}

// Pay marks the order as paid. Stock is not touched until processing starts.
func (s *Service) Pay(ctx context.Context, clinicID, id uuid.UUID, actor string) (*ShopOrder, error) {
	return s.transition(ctx, clinicID, id, StatePaid, engine.Payload{Actor: actor})
}

// StartProcessing begins fulfillment, consuming stock for every line item.
func (s *Service) StartProcessing(ctx context.Context, clinicID, id uuid.UUID, actor string) (*ShopOrder, error) {
	return s.transition(ctx, clinicID, id, StateProcessing, engine.Payload{Actor: actor})
}

// Ship marks the order as shipped with the given carrier and tracking number.
func (s *Service) Ship(ctx context.Context, clinicID, id uuid.UUID, carrier, trackingNo, actor string) (*ShopOrder, error) {
	return s.transition(ctx, clinicID, id, StateShipped, engine.Payload{
		Method:    carrier,
		Reference: trackingNo,
		Actor:     actor,
	})
}

// Deliver marks the order as delivered.
func (s *Service) Deliver(ctx context.Context, clinicID, id uuid.UUID, actor string) (*ShopOrder, error) {
	return s.transition(ctx, clinicID, id, StateDelivered, engine.Payload{Actor: actor})
}

// Cancel cancels the order, releasing consumed stock when fulfillment had
// already started.
func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID, reason, actor string) (*ShopOrder, error) {
	return s.transition(ctx, clinicID, id, StateCancelled, engine.Payload{Reason: reason, Actor: actor})
}

// Refund refunds the order, releasing consumed stock.
func (s *Service) Refund(ctx context.Context, clinicID, id uuid.UUID, reason, actor string) (*ShopOrder, error) {
	return s.transition(ctx, clinicID, id, StateRefunded, engine.Payload{Reason: reason, Actor: actor})
}

// Get returns an order with its line items.
func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*ShopOrder, error) {
	return s.store.Get(ctx, clinicID, id)
}

// List returns a page of the clinic's orders.
func (s *Service) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*ShopOrder, int64, error) {
	return s.store.List(ctx, clinicID, filter)
}

// UpdateNotes changes the order's free-form notes.
func (s *Service) UpdateNotes(ctx context.Context, clinicID, id uuid.UUID, notes string) error {
	return s.store.UpdateNotes(ctx, clinicID, id, notes)
}

// History returns the order's transition records, oldest first.
func (s *Service) History(ctx context.Context, clinicID, id uuid.UUID) ([]*engine.TransitionRecord, error) {
	if _, err := s.store.Get(ctx, clinicID, id); err != nil {
		return nil, err
	}
	return s.exec.History(ctx, id)
}

// AllowedTransitions returns the states the order can move to.
func (s *Service) AllowedTransitions(state engine.State) []engine.State {
	return s.exec.Registry().AllowedTransitions(engine.KindShopOrder, state)
}

func (s *Service) transition(ctx context.Context, clinicID, id uuid.UUID, target engine.State, p engine.Payload) (*ShopOrder, error) {
	agg, err := s.exec.Execute(ctx, clinicID, engine.KindShopOrder, id, target, p)
	if err != nil {
		return nil, err
	}
	return agg.(*ShopOrder), nil
}

func buildLine(orderID uuid.UUID, item NewOrderItem) (ShopOrderItem, error) {
	if item.Quantity <= 0 {
		return ShopOrderItem{}, ErrInvalidQuantity
	}
	if item.UnitPrice < 0 {
		return ShopOrderItem{}, ErrInvalidPrice
	}
	subtotal := item.Quantity*item.UnitPrice - item.Discount
	if item.Discount < 0 || subtotal < 0 {
		return ShopOrderItem{}, ErrInvalidDiscount
	}
	return ShopOrderItem{
		ID:         uuid.New(),
		OrderID:    orderID,
		ResourceID: item.ResourceID,
		Name:       item.Name,
		Quantity:   item.Quantity,
		UnitPrice:  item.UnitPrice,
		Discount:   item.Discount,
		Subtotal:   subtotal,
	}, nil
}

func newOrderNumber(at time.Time) string {
	return "ORD-" + at.Format("20060102") + "-" + random.UpperAlphaNum(5)
}
