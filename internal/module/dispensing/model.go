package dispensing

import (
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
)

// DispensingOrder states.
const (
	StatePending    engine.State = "pending"
	StateDispatched engine.State = "dispatched"
	StateCancelled  engine.State = "cancelled"
)

// DispensingOrder hands prescribed items to a patient. The whole order is
// dispatched in one step that consumes stock for every line, or not at all.
type DispensingOrder struct {
	ID       uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	ClinicID uuid.UUID    `json:"clinic_id" gorm:"type:uuid;not null;index"`
	Number   string       `json:"number" gorm:"uniqueIndex;not null"`
	State    engine.State `json:"state" gorm:"not null;index"`

	PatientID    uuid.UUID `json:"patient_id" gorm:"type:uuid;index"`
	PrescriberID uuid.UUID `json:"prescriber_id" gorm:"type:uuid"`
	Total        int64     `json:"total" gorm:"not null"` // In cents
	Notes        string    `json:"notes,omitempty"`

	Version int64 `json:"-" gorm:"not null;default:1"`

	Items []DispensingItem `json:"items" gorm:"foreignKey:OrderID"`

	StateChangedAt time.Time `json:"state_changed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the table name for DispensingOrder.
func (DispensingOrder) TableName() string {
	return "dispensing_orders"
}

// DispensingItem is one prescribed line of a dispensing order.
type DispensingItem struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ResourceID uuid.UUID `json:"resource_id" gorm:"type:uuid;not null"`
	Name       string    `json:"name" gorm:"not null"`
	Dosage     string    `json:"dosage,omitempty"`
	Quantity   int64     `json:"quantity" gorm:"not null"`
	UnitPrice  int64     `json:"unit_price" gorm:"not null"` // In cents
	Subtotal   int64     `json:"subtotal" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for DispensingItem.
func (DispensingItem) TableName() string {
	return "dispensing_items"
}

// AggregateID implements engine.Aggregate.
func (o *DispensingOrder) AggregateID() uuid.UUID { return o.ID }

// AggregateKind implements engine.Aggregate.
func (o *DispensingOrder) AggregateKind() engine.Kind { return engine.KindDispensingOrder }

// CurrentState implements engine.Aggregate.
func (o *DispensingOrder) CurrentState() engine.State { return o.State }

// SetCurrentState implements engine.Aggregate.
func (o *DispensingOrder) SetCurrentState(state engine.State, at time.Time) {
	o.State = state
	o.StateChangedAt = at
}

// LedgerItems implements engine.Aggregate.
func (o *DispensingOrder) LedgerItems() []engine.LineItem {
	items := make([]engine.LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, engine.LineItem{
			ResourceID: item.ResourceID,
			Quantity:   item.Quantity,
			Amount:     item.Subtotal,
		})
	}
	return items
}

// TotalAmount implements engine.Aggregate.
func (o *DispensingOrder) TotalAmount() int64 { return o.Total }
