package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/clinicore/server/internal/module/ledger"
	"github.com/clinicore/server/internal/utils/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Database runs a function inside one database transaction.
type Database interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AggregateStore loads and saves one kind's aggregates.
type AggregateStore interface {
	// LoadForUpdate loads the aggregate with its line items, holding a
	// row-level write lock until the transaction ends.
	LoadForUpdate(ctx context.Context, tx *gorm.DB, clinicID, id uuid.UUID) (Aggregate, error)
	// Save persists the new state and derived fields with an optimistic
	// version check, returning ErrConflict when the row moved underneath.
	Save(ctx context.Context, tx *gorm.DB, agg Aggregate) error
}

// Executor is the sole entry point for moving an aggregate between states.
// Every call runs in one transaction: state change, ledger mutations and
// the transition record commit together or not at all.
type Executor struct {
	db       Database
	registry *Registry
	ledger   ledger.Store
	records  RecordRepository
	stores   map[Kind]AggregateStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewExecutor creates a transition executor. metrics may be nil.
func NewExecutor(db Database, registry *Registry, ledgerStore ledger.Store, records RecordRepository, logger *zap.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		db:       db,
		registry: registry,
		ledger:   ledgerStore,
		records:  records,
		stores:   make(map[Kind]AggregateStore),
		logger:   logger,
		metrics:  m,
	}
}

// RegisterStore registers the aggregate store for a kind.
func (e *Executor) RegisterStore(kind Kind, store AggregateStore) {
	e.stores[kind] = store
}

// Registry returns the state machine registry the executor validates against.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// History returns the chronological transition records of an aggregate.
func (e *Executor) History(ctx context.Context, aggregateID uuid.UUID) ([]*TransitionRecord, error) {
	return e.records.ListByAggregate(ctx, aggregateID)
}

// Execute moves the aggregate to the target state, applying the bound
// ledger effect. Any failure aborts the whole transaction: stored state
// and ledger are left exactly as before the call.
func (e *Executor) Execute(ctx context.Context, clinicID uuid.UUID, kind Kind, id uuid.UUID, target State, p Payload) (Aggregate, error) {
	store, ok := e.stores[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	start := time.Now()
	var (
		result Aggregate
		from   State
	)

	err := e.db.Transaction(ctx, func(tx *gorm.DB) error {
		agg, err := store.LoadForUpdate(ctx, tx, clinicID, id)
		if err != nil {
			return err
		}
		from = agg.CurrentState()

		tr, err := e.registry.Resolve(kind, from, target)
		if err != nil {
			return err
		}

		if tr.Guard != nil {
			if err := tr.Guard(agg, p); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		final := tr.To

		switch tr.Effect {
		case EffectConsume:
			if err := e.consume(ctx, tx, agg); err != nil {
				return err
			}
		case EffectRelease:
			if p.Reason == "" {
				return fmt.Errorf("%w: a reason is required", ErrValidation)
			}
			if e.registry.RequiresReversal(kind, from) {
				if err := e.release(ctx, tx, agg); err != nil {
					return err
				}
			}
		case EffectSettle:
			final, err = e.settle(ctx, tx, agg, p, now)
			if err != nil {
				return err
			}
			if final != tr.To {
				// The balance decided a different landing state than the
				// caller asked for; it must still be a legal edge.
				tr, err = e.registry.Resolve(kind, from, final)
				if err != nil {
					return err
				}
			}
		}

		if tr.Hook != nil {
			if err := tr.Hook(ctx, tx, agg, p, now); err != nil {
				return err
			}
		}

		agg.SetCurrentState(final, now)

		rec := &TransitionRecord{
			ID:          uuid.New(),
			AggregateID: agg.AggregateID(),
			Kind:        kind,
			FromState:   from,
			ToState:     final,
			Actor:       p.Actor,
			Reason:      p.Reason,
			CreatedAt:   now,
		}
		if tr.Critical {
			rec.Digest = computeDigest(agg, from, final, p.Actor, now)
		}
		if err := e.records.Create(ctx, tx, rec); err != nil {
			return fmt.Errorf("append transition record: %w", err)
		}

		if err := store.Save(ctx, tx, agg); err != nil {
			return err
		}

		result = agg
		return nil
	})

	e.observe(kind, from, target, err, start)

	if err != nil {
		return nil, err
	}

	e.logger.Info("transition executed",
		zap.String("kind", string(kind)),
		zap.String("aggregate_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(result.CurrentState())),
		zap.String("actor", p.Actor),
	)

	return result, nil
}

// consume draws down stock for every line item. Resources are locked in
// deterministic order so two orders sharing items cannot deadlock. The
// first missing or insufficient resource aborts the transaction, leaving
// every resource untouched.
func (e *Executor) consume(ctx context.Context, tx *gorm.DB, agg Aggregate) error {
	items := sortedItems(agg.LedgerItems())
	for _, item := range items {
		if _, err := e.ledger.Consume(ctx, tx, item.ResourceID, item.Quantity); err != nil {
			var stockErr *ledger.InsufficientStockError
			if errors.As(err, &stockErr) && e.metrics != nil {
				e.metrics.StockRejectionsTotal.WithLabelValues(string(agg.AggregateKind())).Inc()
			}
			return err
		}
		if e.metrics != nil {
			e.metrics.LedgerMutationsTotal.WithLabelValues("consume").Inc()
		}
	}
	return nil
}

// release returns every line item's original quantity to stock.
func (e *Executor) release(ctx context.Context, tx *gorm.DB, agg Aggregate) error {
	items := sortedItems(agg.LedgerItems())
	for _, item := range items {
		if _, err := e.ledger.Release(ctx, tx, item.ResourceID, item.Quantity); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.LedgerMutationsTotal.WithLabelValues("release").Inc()
		}
	}
	return nil
}

// settle validates and records a payment, returning the landing state.
func (e *Executor) settle(ctx context.Context, tx *gorm.DB, agg Aggregate, p Payload, now time.Time) (State, error) {
	s, ok := agg.(Settleable)
	if !ok {
		return "", fmt.Errorf("%w: %s does not carry a receivable", ErrValidation, agg.AggregateKind())
	}

	outstanding := s.FaceValue() - s.SettledAmount()
	if p.Amount <= 0 {
		return "", fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	if p.Amount > outstanding {
		return "", &ledger.ExcessPaymentError{
			ResourceID:  s.ReceivableResourceID(),
			Amount:      p.Amount,
			Outstanding: outstanding,
		}
	}

	if _, err := e.ledger.Settle(ctx, tx, s.ReceivableResourceID(), p.Amount); err != nil {
		return "", err
	}
	if e.metrics != nil {
		e.metrics.LedgerMutationsTotal.WithLabelValues("settle").Inc()
	}

	s.ApplySettlement(p.Amount, now)

	settled, partial := e.registry.SettlementStates(agg.AggregateKind())
	if s.FaceValue()-s.SettledAmount() == 0 {
		return settled, nil
	}
	return partial, nil
}

func (e *Executor) observe(kind Kind, from, target State, err error, start time.Time) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	e.metrics.RecordTransition(string(kind), string(from), string(target), outcome, time.Since(start))
}

func sortedItems(items []LineItem) []LineItem {
	sorted := make([]LineItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ResourceID.String() < sorted[j].ResourceID.String()
	})
	return sorted
}
