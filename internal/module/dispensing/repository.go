package dispensing

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter narrows and pages dispensing order listings.
type ListFilter struct {
	State     engine.State
	PatientID uuid.UUID
	Page      int
	PageSize  int
}

// Repository persists dispensing orders and serves as the engine's
// aggregate store for the dispensing order kind.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new dispensing order repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new order with its line items.
func (r *Repository) Create(ctx context.Context, order *DispensingOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Get returns an order with its line items.
func (r *Repository) Get(ctx context.Context, clinicID, id uuid.UUID) (*DispensingOrder, error) {
	var order DispensingOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrAggregateNotFound
		}
		return nil, err
	}
	return &order, nil
}

// List returns a page of the clinic's dispensing orders, newest first.
func (r *Repository) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*DispensingOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&DispensingOrder{}).Where("clinic_id = ?", clinicID)
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.PatientID != uuid.Nil {
		query = query.Where("patient_id = ?", filter.PatientID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var orders []*DispensingOrder
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// LoadForUpdate implements engine.AggregateStore.
func (r *Repository) LoadForUpdate(ctx context.Context, tx *gorm.DB, clinicID, id uuid.UUID) (engine.Aggregate, error) {
	var order DispensingOrder
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		First(&order, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrAggregateNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Save implements engine.AggregateStore with an optimistic version check.
func (r *Repository) Save(ctx context.Context, tx *gorm.DB, agg engine.Aggregate) error {
	order, ok := agg.(*DispensingOrder)
	if !ok {
		return engine.ErrAggregateNotFound
	}

	res := tx.WithContext(ctx).
		Model(&DispensingOrder{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"state":            order.State,
			"total":            order.Total,
			"state_changed_at": order.StateChangedAt,
			"version":          order.Version + 1,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrConflict
	}
	order.Version++
	return nil
}
