package shop

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"gorm.io/gorm"
)

// Definition declares the shop order state machine. Stock consumption is
// bound to paid -> processing, so cancelling an order that never started
// processing touches no inventory.
func Definition() engine.Definition {
	return engine.Definition{
		Kind:    engine.KindShopOrder,
		Initial: StatePendingPayment,
		Transitions: []engine.Transition{
			{From: StatePendingPayment, To: StatePaid, Effect: engine.EffectNone},
			{From: StatePendingPayment, To: StateCancelled, Effect: engine.EffectRelease},

			{From: StatePaid, To: StateProcessing, Effect: engine.EffectConsume},
			{From: StatePaid, To: StateCancelled, Effect: engine.EffectRelease},
			{From: StatePaid, To: StateRefunded, Effect: engine.EffectRelease},

			{From: StateProcessing, To: StateShipped, Effect: engine.EffectNone, Guard: shipGuard, Hook: shipHook},
			{From: StateProcessing, To: StateCancelled, Effect: engine.EffectRelease},
			{From: StateProcessing, To: StateRefunded, Effect: engine.EffectRelease},

			{From: StateShipped, To: StateDelivered, Effect: engine.EffectNone},
			{From: StateShipped, To: StateRefunded, Effect: engine.EffectRelease},

			// Refunding a delivered order is the edge auditors care about.
			{From: StateDelivered, To: StateRefunded, Effect: engine.EffectRelease, Critical: true},
		},
	}
}

// shipGuard requires a carrier before an order can leave the clinic.
func shipGuard(_ engine.Aggregate, p engine.Payload) error {
	if p.Method == "" {
		return fmt.Errorf("%w: a carrier is required to ship", engine.ErrValidation)
	}
	return nil
}

// shipHook stamps the shipping metadata onto the order inside the
// transition's transaction. Method carries the carrier, Reference the
// tracking number.
func shipHook(_ context.Context, _ *gorm.DB, agg engine.Aggregate, p engine.Payload, _ time.Time) error {
	order, ok := agg.(*ShopOrder)
	if !ok {
		return fmt.Errorf("%w: expected a shop order", engine.ErrValidation)
	}
	order.Carrier = p.Method
	order.TrackingNo = p.Reference
	return nil
}
