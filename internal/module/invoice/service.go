package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/clinicore/server/internal/utils/random"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Invoice validation errors.
var (
	ErrNoItems         = fmt.Errorf("%w: invoice requires at least one line item", engine.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: line item quantity must be positive", engine.ErrValidation)
	ErrInvalidPrice    = fmt.Errorf("%w: unit price cannot be negative", engine.ErrValidation)
)

// InvoiceStore is the persistence surface the service needs. *Repository
// implements it.
type InvoiceStore interface {
	engine.AggregateStore
	PaymentRecorder
	CreateInTx(ctx context.Context, tx *gorm.DB, inv *Invoice) error
	Get(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*Invoice, int64, error)
}

// NewInvoiceItem is one billed line of a new invoice.
type NewInvoiceItem struct {
	Description string
	Quantity    int64
	UnitPrice   int64
}

// Service implements invoice operations.
type Service struct {
	db     engine.Database
	store  InvoiceStore
	ledger ledger.Store
	exec   *engine.Executor
	logger *zap.Logger
}

// NewService creates a new invoice service.
func NewService(db engine.Database, store InvoiceStore, ledgerStore ledger.Store, exec *engine.Executor, logger *zap.Logger) *Service {
	return &Service{db: db, store: store, ledger: ledgerStore, exec: exec, logger: logger}
}

// Create issues a new invoice. The receivable ledger resource is
// provisioned in the same transaction, with the invoice total as its
// capacity, so settlement bookkeeping exists before the first payment.
func (s *Service) Create(ctx context.Context, clinicID, patientID uuid.UUID, items []NewInvoiceItem) (*Invoice, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	initial, err := s.exec.Registry().InitialState(engine.KindInvoice)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv := &Invoice{
		ID:             uuid.New(),
		ClinicID:       clinicID,
		Number:         "INV-" + now.Format("20060102") + "-" + random.UpperAlphaNum(5),
		State:          initial,
		PatientID:      patientID,
		Version:        1,
		StateChangedAt: now,
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return nil, ErrInvalidPrice
		}
		inv.Items = append(inv.Items, InvoiceItem{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Quantity * item.UnitPrice,
		})
		inv.Total += item.Quantity * item.UnitPrice
	}
	inv.Outstanding = inv.Total

	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		receivable := &ledger.Resource{
			ID:       uuid.New(),
			ClinicID: clinicID,
			Kind:     ledger.ResourceKindReceivable,
			Name:     inv.Number,
			Capacity: inv.Total,
		}
		if err := s.ledger.CreateInTx(ctx, tx, receivable); err != nil {
			return fmt.Errorf("provision receivable: %w", err)
		}
		inv.ReceivableID = receivable.ID
		return s.store.CreateInTx(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice issued",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number),
		zap.Int64("total", inv.Total),
	)

	return inv, nil
}

// RecordPayment settles a payment against the invoice. The resulting
// state follows the balance: paid when it reaches exactly zero, partial
// otherwise.
func (s *Service) RecordPayment(ctx context.Context, clinicID, id uuid.UUID, amount int64, method, reference, actor string) (*Invoice, error) {
	return s.transition(ctx, clinicID, id, StatePaid, engine.Payload{
		Amount:    amount,
		Method:    method,
		Reference: reference,
		Actor:     actor,
	})
}

// Cancel voids an invoice. Rejected once any payment has settled.
func (s *Service) Cancel(ctx context.Context, clinicID, id uuid.UUID, reason, actor string) (*Invoice, error) {
	return s.transition(ctx, clinicID, id, StateCancelled, engine.Payload{Reason: reason, Actor: actor})
}

// Get returns an invoice with its line items and payments.
func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	return s.store.Get(ctx, clinicID, id)
}

// List returns a page of the clinic's invoices.
func (s *Service) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*Invoice, int64, error) {
	return s.store.List(ctx, clinicID, filter)
}

// History returns the invoice's transition records, oldest first.
func (s *Service) History(ctx context.Context, clinicID, id uuid.UUID) ([]*engine.TransitionRecord, error) {
	if _, err := s.store.Get(ctx, clinicID, id); err != nil {
		return nil, err
	}
	return s.exec.History(ctx, id)
}

// AllowedTransitions returns the states the invoice can move to.
func (s *Service) AllowedTransitions(state engine.State) []engine.State {
	return s.exec.Registry().AllowedTransitions(engine.KindInvoice, state)
}

func (s *Service) transition(ctx context.Context, clinicID, id uuid.UUID, target engine.State, p engine.Payload) (*Invoice, error) {
	agg, err := s.exec.Execute(ctx, clinicID, engine.KindInvoice, id, target, p)
	if err != nil {
		return nil, err
	}
	return agg.(*Invoice), nil
}
