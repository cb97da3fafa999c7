package engine

import (
	"fmt"
	"sort"
)

// machine is one kind's compiled state machine.
type machine struct {
	initial        State
	states         map[State]struct{}
	edges          map[State]map[State]*Transition
	consumedIn     map[State]bool
	settled        State
	partialSettled State
}

// Registry holds the declared state machines for every entity kind.
// Adjacency and side-effect bindings are data, not code paths; reversal
// scope is derived from the consume bindings instead of a parallel list.
type Registry struct {
	machines map[Kind]*machine
}

// NewRegistry compiles the given definitions. It fails on duplicate edges,
// on settle edges without declared settlement states, and on machines where
// the consumed-stock status of a state differs between paths.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{machines: make(map[Kind]*machine, len(defs))}

	for _, def := range defs {
		if _, dup := r.machines[def.Kind]; dup {
			return nil, fmt.Errorf("duplicate definition for kind %q", def.Kind)
		}
		m, err := compile(def)
		if err != nil {
			return nil, fmt.Errorf("kind %q: %w", def.Kind, err)
		}
		r.machines[def.Kind] = m
	}

	return r, nil
}

func compile(def Definition) (*machine, error) {
	if def.Initial == "" {
		return nil, fmt.Errorf("missing initial state")
	}

	m := &machine{
		initial:        def.Initial,
		states:         make(map[State]struct{}),
		edges:          make(map[State]map[State]*Transition),
		consumedIn:     make(map[State]bool),
		settled:        def.Settled,
		partialSettled: def.PartialSettled,
	}
	m.states[def.Initial] = struct{}{}

	hasSettle := false
	for i := range def.Transitions {
		tr := def.Transitions[i]
		m.states[tr.From] = struct{}{}
		m.states[tr.To] = struct{}{}
		if m.edges[tr.From] == nil {
			m.edges[tr.From] = make(map[State]*Transition)
		}
		if _, dup := m.edges[tr.From][tr.To]; dup {
			return nil, fmt.Errorf("duplicate edge %s -> %s", tr.From, tr.To)
		}
		m.edges[tr.From][tr.To] = &def.Transitions[i]
		if tr.Effect == EffectSettle {
			hasSettle = true
		}
	}

	if hasSettle {
		if _, ok := m.states[def.Settled]; !ok {
			return nil, fmt.Errorf("settle edges require a declared settled state")
		}
		if _, ok := m.states[def.PartialSettled]; !ok {
			return nil, fmt.Errorf("settle edges require a declared partial settled state")
		}
	}

	if err := m.deriveConsumption(); err != nil {
		return nil, err
	}

	return m, nil
}

// deriveConsumption walks the machine from its initial state and marks, for
// every reachable state, whether stock has been consumed by the time the
// aggregate sits in it. Crossing a consume edge sets the flag, crossing a
// release edge clears it. A state reachable with both values would make
// reversal ambiguous and rejects the definition.
func (m *machine) deriveConsumption() error {
	type node struct {
		state    State
		consumed bool
	}

	seen := make(map[State]bool)
	queue := []node{{state: m.initial, consumed: false}}
	m.consumedIn[m.initial] = false
	seen[m.initial] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for to, tr := range m.edges[cur.state] {
			next := cur.consumed
			switch tr.Effect {
			case EffectConsume:
				next = true
			case EffectRelease:
				next = false
			}

			if seen[to] {
				if m.consumedIn[to] != next {
					return fmt.Errorf("state %s has ambiguous consumption status", to)
				}
				continue
			}
			seen[to] = true
			m.consumedIn[to] = next
			queue = append(queue, node{state: to, consumed: next})
		}
	}

	return nil
}

// InitialState returns the initial state for a kind.
func (r *Registry) InitialState(kind Kind) (State, error) {
	m, ok := r.machines[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return m.initial, nil
}

// AllowedTransitions returns the states reachable from the given state.
// Pure lookup, no side effects.
func (r *Registry) AllowedTransitions(kind Kind, from State) []State {
	m, ok := r.machines[kind]
	if !ok {
		return nil
	}
	targets := make([]State, 0, len(m.edges[from]))
	for to := range m.edges[from] {
		targets = append(targets, to)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// IsTerminal reports whether a state has no outgoing edges.
func (r *Registry) IsTerminal(kind Kind, state State) bool {
	m, ok := r.machines[kind]
	if !ok {
		return false
	}
	if _, known := m.states[state]; !known {
		return false
	}
	return len(m.edges[state]) == 0
}

// Resolve returns the transition for the given edge, or ErrInvalidTransition.
func (r *Registry) Resolve(kind Kind, from, to State) (*Transition, error) {
	m, ok := r.machines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	tr, ok := m.edges[from][to]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, kind, from, to)
	}
	return tr, nil
}

// RequiresReversal reports whether an aggregate sitting in the given state
// holds consumed stock that a cancellation or refund must release.
func (r *Registry) RequiresReversal(kind Kind, state State) bool {
	m, ok := r.machines[kind]
	if !ok {
		return false
	}
	return m.consumedIn[state]
}

// SettlementStates returns the states a settlement lands on: the fully
// settled state and the partially settled one.
func (r *Registry) SettlementStates(kind Kind) (settled, partial State) {
	m, ok := r.machines[kind]
	if !ok {
		return "", ""
	}
	return m.settled, m.partialSettled
}
