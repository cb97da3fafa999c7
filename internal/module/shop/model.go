package shop

import (
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
)

// ShopOrder states.
const (
	StatePendingPayment engine.State = "pending_payment"
	StatePaid           engine.State = "paid"
	StateProcessing     engine.State = "processing"
	StateShipped        engine.State = "shipped"
	StateDelivered      engine.State = "delivered"
	StateCancelled      engine.State = "cancelled"
	StateRefunded       engine.State = "refunded"
)

// ShopOrder is a retail order placed at a clinic's shop. Stock is drawn
// down when the order moves from paid to processing, not at checkout.
type ShopOrder struct {
	ID       uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	ClinicID uuid.UUID    `json:"clinic_id" gorm:"type:uuid;not null;index"`
	Number   string       `json:"number" gorm:"uniqueIndex;not null"`
	State    engine.State `json:"state" gorm:"not null;index"`

	PatientID uuid.UUID `json:"patient_id" gorm:"type:uuid;index"`
	Total     int64     `json:"total" gorm:"not null"` // In cents

	// Shipping metadata, filled in as the order advances.
	Recipient  string `json:"recipient,omitempty"`
	Address    string `json:"address,omitempty"`
	Carrier    string `json:"carrier,omitempty"`
	TrackingNo string `json:"tracking_no,omitempty"`

	// Notes stays editable even in terminal states.
	Notes string `json:"notes,omitempty"`

	Version int64 `json:"-" gorm:"not null;default:1"`

	Items []ShopOrderItem `json:"items" gorm:"foreignKey:OrderID"`

	StateChangedAt time.Time `json:"state_changed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the table name for ShopOrder.
func (ShopOrder) TableName() string {
	return "shop_orders"
}

// ShopOrderItem is one line of a shop order.
type ShopOrderItem struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ResourceID uuid.UUID `json:"resource_id" gorm:"type:uuid;not null"`
	Name       string    `json:"name" gorm:"not null"`
	Quantity   int64     `json:"quantity" gorm:"not null"`
	UnitPrice  int64     `json:"unit_price" gorm:"not null"` // In cents
	Discount   int64     `json:"discount" gorm:"not null;default:0"`
	Subtotal   int64     `json:"subtotal" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for ShopOrderItem.
func (ShopOrderItem) TableName() string {
	return "shop_order_items"
}

// AggregateID implements engine.Aggregate.
func (o *ShopOrder) AggregateID() uuid.UUID { return o.ID }

// AggregateKind implements engine.Aggregate.
func (o *ShopOrder) AggregateKind() engine.Kind { return engine.KindShopOrder }

// CurrentState implements engine.Aggregate.
func (o *ShopOrder) CurrentState() engine.State { return o.State }

// SetCurrentState implements engine.Aggregate.
func (o *ShopOrder) SetCurrentState(state engine.State, at time.Time) {
	o.State = state
	o.StateChangedAt = at
}

// LedgerItems implements engine.Aggregate.
func (o *ShopOrder) LedgerItems() []engine.LineItem {
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
func (o *ShopOrder) TotalAmount() int64 { return o.Total }
