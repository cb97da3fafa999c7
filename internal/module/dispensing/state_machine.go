package dispensing

import (
	"github.com/clinicore/server/internal/module/engine"
)

// Definition declares the dispensing order state machine. Dispatch hands
// medication to the patient, so it is the digested edge.
func Definition() engine.Definition {
	return engine.Definition{
		Kind:    engine.KindDispensingOrder,
		Initial: StatePending,
		Transitions: []engine.Transition{
			{From: StatePending, To: StateDispatched, Effect: engine.EffectConsume, Critical: true},
			{From: StatePending, To: StateCancelled, Effect: engine.EffectRelease},
		},
	}
}
