package invoice

import (
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
)

// Invoice states.
const (
	StatePending   engine.State = "pending"
	StatePartial   engine.State = "partial"
	StatePaid      engine.State = "paid"
	StateCancelled engine.State = "cancelled"
)

// Invoice bills a patient. Its receivable is a ledger resource with the
// face value as capacity, so settlement shares the same bounded-counter
// arithmetic as stock.
type Invoice struct {
	ID       uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	ClinicID uuid.UUID    `json:"clinic_id" gorm:"type:uuid;not null;index"`
	Number   string       `json:"number" gorm:"uniqueIndex;not null"`
	State    engine.State `json:"state" gorm:"not null;index"`

	PatientID    uuid.UUID `json:"patient_id" gorm:"type:uuid;index"`
	Total        int64     `json:"total" gorm:"not null"`   // Face value in cents
	Settled      int64     `json:"settled" gorm:"not null"` // Cumulative payments in cents
	Outstanding  int64     `json:"outstanding" gorm:"not null"`
	ReceivableID uuid.UUID `json:"receivable_id" gorm:"type:uuid;not null"`
	Notes        string    `json:"notes,omitempty"`

	Version int64 `json:"-" gorm:"not null;default:1"`

	Items    []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID"`
	Payments []Payment     `json:"payments" gorm:"foreignKey:InvoiceID"`

	StateChangedAt time.Time `json:"state_changed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the table name for Invoice.
func (Invoice) TableName() string {
	return "invoices"
}

// InvoiceItem is one billed line of an invoice.
type InvoiceItem struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	InvoiceID   uuid.UUID `json:"invoice_id" gorm:"type:uuid;not null;index"`
	Description string    `json:"description" gorm:"not null"`
	Quantity    int64     `json:"quantity" gorm:"not null"`
	UnitPrice   int64     `json:"unit_price" gorm:"not null"` // In cents
	Subtotal    int64     `json:"subtotal" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for InvoiceItem.
func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// Payment is one settled payment against an invoice. Rows are written
// inside the settlement transition's transaction and never updated.
type Payment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	InvoiceID uuid.UUID `json:"invoice_id" gorm:"type:uuid;not null;index"`
	Amount    int64     `json:"amount" gorm:"not null"` // In cents
	Method    string    `json:"method,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for Payment.
func (Payment) TableName() string {
	return "invoice_payments"
}

// AggregateID implements engine.Aggregate.
func (i *Invoice) AggregateID() uuid.UUID { return i.ID }

// AggregateKind implements engine.Aggregate.
func (i *Invoice) AggregateKind() engine.Kind { return engine.KindInvoice }

// CurrentState implements engine.Aggregate.
func (i *Invoice) CurrentState() engine.State { return i.State }

// SetCurrentState implements engine.Aggregate.
func (i *Invoice) SetCurrentState(state engine.State, at time.Time) {
	i.State = state
	i.StateChangedAt = at
}

// LedgerItems implements engine.Aggregate. An invoice's only ledger
// binding is its receivable, handled through the Settleable interface.
func (i *Invoice) LedgerItems() []engine.LineItem { return nil }

// TotalAmount implements engine.Aggregate.
func (i *Invoice) TotalAmount() int64 { return i.Total }

// FaceValue implements engine.Settleable.
func (i *Invoice) FaceValue() int64 { return i.Total }

// SettledAmount implements engine.Settleable.
func (i *Invoice) SettledAmount() int64 { return i.Settled }

// ReceivableResourceID implements engine.Settleable.
func (i *Invoice) ReceivableResourceID() uuid.UUID { return i.ReceivableID }

// ApplySettlement implements engine.Settleable.
func (i *Invoice) ApplySettlement(amount int64, _ time.Time) {
	i.Settled += amount
	i.Outstanding = i.Total - i.Settled
}
