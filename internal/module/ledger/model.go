package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ResourceKind distinguishes the two kinds of quantity-bounded resources.
type ResourceKind string

const (
	// ResourceKindStock is an inventory item: Capacity is the total units
	// ever stocked, Consumed the units drawn down by orders.
	ResourceKindStock ResourceKind = "stock"
	// ResourceKindReceivable is an invoice's receivable: Capacity is the
	// face value in cents, Consumed the settled amount.
	ResourceKindReceivable ResourceKind = "receivable"
)

// Resource is a unit-bearing ledger resource.
// Invariant: 0 <= Consumed <= Capacity at all times.
type Resource struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClinicID  uuid.UUID      `json:"clinic_id" gorm:"type:uuid;not null;index"`
	Kind      ResourceKind   `json:"kind" gorm:"not null;index"`
	Name      string         `json:"name" gorm:"not null"`
	SKU       string         `json:"sku,omitempty" gorm:"index"`
	Unit      string         `json:"unit,omitempty"`
	UnitPrice int64          `json:"unit_price,omitempty"` // In cents
	Capacity  int64          `json:"capacity"`
	Consumed  int64          `json:"consumed"`
	Tags      pq.StringArray `json:"tags,omitempty" gorm:"type:text[]"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the database table name.
func (Resource) TableName() string {
	return "ledger_resources"
}

// Available returns the quantity still available for consumption.
func (r *Resource) Available() int64 {
	return r.Capacity - r.Consumed
}

// Consume draws down qty units of stock.
// Returns InsufficientStockError if fewer than qty units are available.
func (r *Resource) Consume(qty int64) error {
	if r.Kind != ResourceKindStock {
		return ErrResourceKindMismatch
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Consumed+qty > r.Capacity {
		return &InsufficientStockError{
			ResourceID: r.ID,
			Name:       r.Name,
			Requested:  qty,
			Available:  r.Available(),
		}
	}
	r.Consumed += qty
	return nil
}

// Release returns qty previously consumed units to the available pool.
// Driving Consumed below zero is a bookkeeping defect, not a valid state.
func (r *Resource) Release(qty int64) error {
	if r.Kind != ResourceKindStock {
		return ErrResourceKindMismatch
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > r.Consumed {
		return ErrReleaseUnderflow
	}
	r.Consumed -= qty
	return nil
}

// Settle records amount cents paid against a receivable.
// Returns ExcessPaymentError if amount exceeds the outstanding balance.
func (r *Resource) Settle(amount int64) error {
	if r.Kind != ResourceKindReceivable {
		return ErrResourceKindMismatch
	}
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	if r.Consumed+amount > r.Capacity {
		return &ExcessPaymentError{
			ResourceID:  r.ID,
			Amount:      amount,
			Outstanding: r.Available(),
		}
	}
	r.Consumed += amount
	return nil
}
