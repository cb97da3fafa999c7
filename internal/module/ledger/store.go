package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the atomic quantity bookkeeping layer underneath orders.
// Consume, Release and Settle take the caller's open transaction so their
// effects commit or roll back together with the state change that caused
// them. Each locks the resource row for the duration of the transaction.
type Store interface {
	Create(ctx context.Context, res *Resource) error
	CreateInTx(ctx context.Context, tx *gorm.DB, res *Resource) error
	Get(ctx context.Context, clinicID, id uuid.UUID) (*Resource, error)
	List(ctx context.Context, clinicID uuid.UUID, kind ResourceKind) ([]*Resource, error)
	Restock(ctx context.Context, clinicID, id uuid.UUID, qty int64) (*Resource, error)

	Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int64) (*Resource, error)
	Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int64) (*Resource, error)
	Settle(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount int64) (*Resource, error)
}

type store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a new ledger store.
func NewStore(db *gorm.DB, logger *zap.Logger) Store {
	return &store{db: db, logger: logger}
}

func (s *store) Create(ctx context.Context, res *Resource) error {
	return s.db.WithContext(ctx).Create(res).Error
}

func (s *store) CreateInTx(ctx context.Context, tx *gorm.DB, res *Resource) error {
	return tx.WithContext(ctx).Create(res).Error
}

func (s *store) Get(ctx context.Context, clinicID, id uuid.UUID) (*Resource, error) {
	var res Resource
	err := s.db.WithContext(ctx).
		First(&res, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (s *store) List(ctx context.Context, clinicID uuid.UUID, kind ResourceKind) ([]*Resource, error) {
	var resources []*Resource
	query := s.db.WithContext(ctx).Where("clinic_id = ?", clinicID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	err := query.Order("name ASC").Find(&resources).Error
	return resources, err
}

// Restock raises the total capacity of a stock resource.
func (s *store) Restock(ctx context.Context, clinicID, id uuid.UUID, qty int64) (*Resource, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var res *Resource
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockResource(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked.ClinicID != clinicID {
			return ErrResourceNotFound
		}
		if locked.Kind != ResourceKindStock {
			return ErrResourceKindMismatch
		}
		locked.Capacity += qty
		if err := tx.WithContext(ctx).Save(locked).Error; err != nil {
			return err
		}
		res = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *store) Consume(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int64) (*Resource, error) {
	res, err := lockResource(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := res.Consume(qty); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Save(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (s *store) Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int64) (*Resource, error) {
	res, err := lockResource(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := res.Release(qty); err != nil {
		if errors.Is(err, ErrReleaseUnderflow) {
			// A reversal larger than what was consumed means the books are
			// already wrong somewhere else. Reject, never clamp.
			s.logger.Error("ledger release underflow",
				zap.String("resource_id", id.String()),
				zap.Int64("requested", qty),
				zap.Int64("consumed", res.Consumed),
			)
		}
		return nil, err
	}
	if err := tx.WithContext(ctx).Save(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (s *store) Settle(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount int64) (*Resource, error) {
	res, err := lockResource(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := res.Settle(amount); err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Save(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// lockResource loads a resource row with a row-level write lock. Concurrent
// check-then-act sequences against the same resource serialize here.
func lockResource(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Resource, error) {
	var res Resource
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &res, nil
}
