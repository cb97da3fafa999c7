package dispensing

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/utils/random"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispensing validation errors.
var (
	ErrNoItems         = fmt.Errorf("%w: dispensing order requires at least one line item", engine.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: line item quantity must be positive", engine.ErrValidation)
)

// OrderStore is the persistence surface the service needs. *Repository
// implements it.
type OrderStore interface {
	engine.AggregateStore
	Create(ctx context.Context, order *DispensingOrder) error
	Get(ctx context.Context, clinicID, id uuid.UUID) (*DispensingOrder, error)
	List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*DispensingOrder, int64, error)
}

// NewDispensingItem is one prescribed line of a new dispensing order.
type NewDispensingItem struct {
	ResourceID uuid.UUID
	Name       string
	Dosage     string
	Quantity   int64
	UnitPrice  int64
}

// Service implements dispensing order operations.
type Service struct {
	store  OrderStore
	exec   *engine.Executor
	logger *zap.Logger
}

// NewService creates a new dispensing service.
func NewService(store OrderStore, exec *engine.Executor, logger *zap.Logger) *Service {
	return &Service{store: store, exec: exec, logger: logger}
}

// Create registers a new dispensing order in its initial state.
func (s *Service) Create(ctx context.Context, clinicID, patientID, prescriberID uuid.UUID, items []NewDispensingItem) (*DispensingOrder, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	initial, err := s.exec.Registry().InitialState(engine.KindDispensingOrder)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &DispensingOrder{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		Number:         "DSP-" + now.Format("20060102") + "-" + random.UpperAlphaNum(5),
		State:          initial,
		PatientID:      patientID,
		PrescriberID:   prescriberID,
		Version:        1,
		StateChangedAt: now,
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		order.Items = append(order.Items, DispensingItem{
			ID:         uuid.New(),
			OrderID:    order.ID,
			ResourceID: item.ResourceID,
			Name:       item.Name,
			Dosage:     item.Dosage,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Subtotal:   item.Quantity * item.UnitPrice,
		})
		order.Total += item.Quantity * item.UnitPrice
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("dispensing order created",
		zap.String("order_id", order.ID.String()),
		zap.String("number", order.Number),
		zap.String("patient_id", patientID.String()),
		zap.Int("items", len(order.Items)),
	)

	return order, nil
}

// Dispatch hands the order to the patient, consuming stock for every line
// item. A single missing or short resource rejects the whole dispatch.
func (s *Service) Dispatch(ctx context.Context, clinicID, id uuid.UUID, actor string) (*DispensingOrder, error) {
	return s.transition(ctx, clinicID, id, StateDispatched, engine.Payload{Actor: actor})
}

// Cancel cancels a pending order.
func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID, reason, actor string) (*DispensingOrder, error) {
	return s.transition(ctx, clinicID, id, StateCancelled, engine.Payload{Reason: reason, Actor: actor})
}

// Get returns an order with its line items.
func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*DispensingOrder, error) {
	return s.store.Get(ctx, clinicID, id)
}

// List returns a page of the clinic's dispensing orders.
func (s *Service) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*DispensingOrder, int64, error) {
	return s.store.List(ctx, clinicID, filter)
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
	return s.exec.Registry().AllowedTransitions(engine.KindDispensingOrder, state)
}

func (s *Service) transition(ctx context.Context, clinicID, id uuid.UUID, target engine.State, p engine.Payload) (*DispensingOrder, error) {
	agg, err := s.exec.Execute(ctx, clinicID, engine.KindDispensingOrder, id, target, p)
	if err != nil {
		return nil, err
	}
	return agg.(*DispensingOrder), nil
}
