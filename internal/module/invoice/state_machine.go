package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRecorder writes a payment row inside the settlement transaction.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, tx *gorm.DB, payment *Payment) error
}

// Definition declares the invoice state machine. The executor picks the
// landing state from the outstanding balance, so both settle edges out of
// each state share one payment hook. The partial -> partial self edge
// makes a third or fourth partial payment expressible.
func Definition(recorder PaymentRecorder) engine.Definition {
	hook := paymentHook(recorder)
	return engine.Definition{
		Kind:    engine.KindInvoice,
		Initial: StatePending,
		Transitions: []engine.Transition{
			{From: StatePending, To: StatePartial, Effect: engine.EffectSettle, Hook: hook},
			{From: StatePending, To: StatePaid, Effect: engine.EffectSettle, Hook: hook},
			{From: StatePending, To: StateCancelled, Effect: engine.EffectRelease, Critical: true, Guard: cancelGuard},

			{From: StatePartial, To: StatePartial, Effect: engine.EffectSettle, Hook: hook},
			{From: StatePartial, To: StatePaid, Effect: engine.EffectSettle, Hook: hook},
			// Declared so the request reaches the guard, which always
			// rejects it: a partially settled invoice is never cancellable.
			{From: StatePartial, To: StateCancelled, Effect: engine.EffectRelease, Critical: true, Guard: cancelGuard},
		},
		Settled:        StatePaid,
		PartialSettled: StatePartial,
	}
}

// cancelGuard rejects cancellation once any payment has settled. Undoing
// settled money is a refund in the accounting system, not a transition here.
func cancelGuard(agg engine.Aggregate, _ engine.Payload) error {
	inv, ok := agg.(*Invoice)
	if !ok {
		return fmt.Errorf("%w: expected an invoice", engine.ErrValidation)
	}
	if inv.Settled > 0 {
		return fmt.Errorf("%w: invoice %s has settled payments and cannot be cancelled", engine.ErrValidation, inv.Number)
	}
	return nil
}

func paymentHook(recorder PaymentRecorder) engine.Hook {
	return func(ctx context.Context, tx *gorm.DB, agg engine.Aggregate, p engine.Payload, at time.Time) error {
		inv, ok := agg.(*Invoice)
		if !ok {
			return fmt.Errorf("%w: expected an invoice", engine.ErrValidation)
		}
		return recorder.RecordPayment(ctx, tx, &Payment{
			ID:        uuid.New(),
			InvoiceID: inv.ID,
			Amount:    p.Amount,
			Method:    p.Method,
			Reference: p.Reference,
			Actor:     p.Actor,
			CreatedAt: at,
		})
	}
}
