package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kindTest Kind = "test_order"

func testDefinition() Definition {
	return Definition{
		Kind:    kindTest,
		Initial: "draft",
		Transitions: []Transition{
			{From: "draft", To: "reserved", Effect: EffectConsume},
			{From: "draft", To: "cancelled", Effect: EffectRelease},
			{From: "reserved", To: "done", Effect: EffectNone},
			{From: "reserved", To: "cancelled", Effect: EffectRelease},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("compiles a valid definition", func(t *testing.T) {
		r, err := NewRegistry(testDefinition())
		require.NoError(t, err)

		initial, err := r.InitialState(kindTest)
		require.NoError(t, err)
		assert.Equal(t, State("draft"), initial)
	})

	t.Run("rejects duplicate kinds", func(t *testing.T) {
		_, err := NewRegistry(testDefinition(), testDefinition())
		assert.ErrorContains(t, err, "duplicate definition")
	})

	t.Run("rejects duplicate edges", func(t *testing.T) {
		def := testDefinition()
		def.Transitions = append(def.Transitions, Transition{From: "draft", To: "reserved"})
		_, err := NewRegistry(def)
		assert.ErrorContains(t, err, "duplicate edge")
	})

	t.Run("rejects missing initial state", func(t *testing.T) {
		def := testDefinition()
		def.Initial = ""
		_, err := NewRegistry(def)
		assert.ErrorContains(t, err, "missing initial state")
	})

	t.Run("settle edges require settlement states", func(t *testing.T) {
		def := Definition{
			Kind:    "billing",
			Initial: "open",
			Transitions: []Transition{
				{From: "open", To: "paid", Effect: EffectSettle},
			},
		}
		_, err := NewRegistry(def)
		assert.ErrorContains(t, err, "settled state")

		def.Settled = "paid"
		def.PartialSettled = "partial"
		def.Transitions = append(def.Transitions,
			Transition{From: "open", To: "partial", Effect: EffectSettle},
			Transition{From: "partial", To: "paid", Effect: EffectSettle},
		)
		_, err = NewRegistry(def)
		assert.NoError(t, err)
	})

	t.Run("rejects ambiguous consumption status", func(t *testing.T) {
		def := Definition{
			Kind:    "broken",
			Initial: "a",
			Transitions: []Transition{
				{From: "a", To: "b", Effect: EffectConsume},
				{From: "a", To: "c", Effect: EffectNone},
				// b is reached with stock consumed, c without; both feed d.
				{From: "b", To: "d", Effect: EffectNone},
				{From: "c", To: "d", Effect: EffectNone},
			},
		}
		_, err := NewRegistry(def)
		assert.ErrorContains(t, err, "ambiguous consumption")
	})
}

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry(testDefinition())
	require.NoError(t, err)

	t.Run("returns the declared edge", func(t *testing.T) {
		tr, err := r.Resolve(kindTest, "draft", "reserved")
		require.NoError(t, err)
		assert.Equal(t, EffectConsume, tr.Effect)
	})

	t.Run("rejects undeclared edges", func(t *testing.T) {
		_, err := r.Resolve(kindTest, "draft", "done")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("rejects replaying the current state", func(t *testing.T) {
		// No self edge is declared, so a repeated request after a
		// successful transition fails instead of double-applying effects.
		_, err := r.Resolve(kindTest, "reserved", "reserved")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("rejects moving out of a terminal state", func(t *testing.T) {
		_, err := r.Resolve(kindTest, "done", "draft")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := r.Resolve("nope", "draft", "reserved")
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestRegistryAllowedTransitions(t *testing.T) {
	r, err := NewRegistry(testDefinition())
	require.NoError(t, err)

	assert.Equal(t, []State{"cancelled", "reserved"}, r.AllowedTransitions(kindTest, "draft"))
	assert.Equal(t, []State{"cancelled", "done"}, r.AllowedTransitions(kindTest, "reserved"))
	assert.Empty(t, r.AllowedTransitions(kindTest, "done"))
}

func TestRegistryIsTerminal(t *testing.T) {
	r, err := NewRegistry(testDefinition())
	require.NoError(t, err)

	assert.True(t, r.IsTerminal(kindTest, "done"))
	assert.True(t, r.IsTerminal(kindTest, "cancelled"))
	assert.False(t, r.IsTerminal(kindTest, "draft"))
	assert.False(t, r.IsTerminal(kindTest, "elsewhere"))
}

func TestRegistryRequiresReversal(t *testing.T) {
	r, err := NewRegistry(testDefinition())
	require.NoError(t, err)

	// Stock is consumed on draft -> reserved, so only states at or past
	// reserved carry stock to give back.
	assert.False(t, r.RequiresReversal(kindTest, "draft"))
	assert.True(t, r.RequiresReversal(kindTest, "reserved"))
	assert.False(t, r.RequiresReversal(kindTest, "cancelled"))
}

func TestRegistryRequiresReversalDeepChain(t *testing.T) {
	def := Definition{
		Kind:    "chain",
		Initial: "new",
		Transitions: []Transition{
			{From: "new", To: "held", Effect: EffectConsume},
			{From: "held", To: "moving", Effect: EffectNone},
			{From: "moving", To: "closed", Effect: EffectNone},
			{From: "closed", To: "returned", Effect: EffectRelease},
		},
	}
	r, err := NewRegistry(def)
	require.NoError(t, err)

	// The consumed flag survives any number of effect-free hops.
	for _, state := range []State{"held", "moving", "closed"} {
		assert.True(t, r.RequiresReversal("chain", state), string(state))
	}
	assert.False(t, r.RequiresReversal("chain", "new"))
	assert.False(t, r.RequiresReversal("chain", "returned"))
}

func TestRegistrySettlementStates(t *testing.T) {
	def := Definition{
		Kind:    "billing",
		Initial: "open",
		Transitions: []Transition{
			{From: "open", To: "partial", Effect: EffectSettle},
			{From: "open", To: "paid", Effect: EffectSettle},
			{From: "partial", To: "paid", Effect: EffectSettle},
		},
		Settled:        "paid",
		PartialSettled: "partial",
	}
	r, err := NewRegistry(def)
	require.NoError(t, err)

	settled, partial := r.SettlementStates("billing")
	assert.Equal(t, State("paid"), settled)
	assert.Equal(t, State("partial"), partial)
}
