package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Kind identifies an entity kind with its own state machine.
type Kind string

const (
	KindShopOrder       Kind = "shop_order"
	KindDispensingOrder Kind = "dispensing_order"
	KindInvoice         Kind = "invoice"
)

// State is one state of an entity kind's machine.
type State string

// Effect is the ledger side effect bound to a transition.
type Effect string

const (
	// EffectNone moves state without touching the ledger.
	EffectNone Effect = "none"
	// EffectConsume draws down stock for every line item, all or nothing.
	EffectConsume Effect = "consume"
	// EffectRelease reverses previously consumed stock on cancellation or
	// refund. The ledger is only touched when the aggregate's current state
	// carries consumed stock (see Registry.RequiresReversal).
	EffectRelease Effect = "release"
	// EffectSettle records a payment against the aggregate's receivable.
	EffectSettle Effect = "settle"
)

// Payload carries the transition-specific input.
// Settlement transitions use Amount, Method and Reference; cancellation and
// refund transitions require Reason. Actor identifies the staff member.
type Payload struct {
	Amount    int64
	Method    string
	Reference string
	Reason    string
	Actor     string
}

// LineItem is the engine's view of one aggregate line item: which ledger
// resource it draws from and how much.
type LineItem struct {
	ResourceID uuid.UUID
	Quantity   int64
	Amount     int64 // Subtotal in cents
}

// Aggregate is an order-like entity moved through its state machine.
type Aggregate interface {
	AggregateID() uuid.UUID
	AggregateKind() Kind
	CurrentState() State
	SetCurrentState(state State, at time.Time)
	LedgerItems() []LineItem
	TotalAmount() int64
}

// Settleable is an aggregate that carries a receivable balance (invoices).
type Settleable interface {
	Aggregate
	FaceValue() int64
	SettledAmount() int64
	ReceivableResourceID() uuid.UUID
	ApplySettlement(amount int64, at time.Time)
}

// Guard vetoes a transition based on aggregate state and payload.
// Returning an error aborts the transition before any side effect runs.
type Guard func(agg Aggregate, p Payload) error

// Hook runs inside the transition's transaction after its ledger effect,
// for kind-specific writes that must commit atomically with the state
// change (payment rows, shipping metadata).
type Hook func(ctx context.Context, tx *gorm.DB, agg Aggregate, p Payload, at time.Time) error

// Transition is one edge of a kind's state machine, declared as data.
type Transition struct {
	From     State
	To       State
	Effect   Effect
	Critical bool // compute an integrity digest on the transition record
	Guard    Guard
	Hook     Hook
}

// Definition declares a kind's complete state machine.
type Definition struct {
	Kind        Kind
	Initial     State
	Transitions []Transition

	// Settlement result states, required when any edge carries
	// EffectSettle: the executor lands on Settled when the outstanding
	// balance reaches exactly zero, PartialSettled otherwise.
	Settled        State
	PartialSettled State
}
