package shop

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter narrows and pages order listings.
type ListFilter struct {
	State    engine.State
	Page     int
	PageSize int
}

// Repository persists shop orders. It doubles as the engine's aggregate
// store for the shop order kind.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new shop order repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new order with its line items.
func (r *Repository) Create(ctx context.Context, order *ShopOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// Get returns an order with its line items.
func (r *Repository) Get(ctx context.Context, clinicID, id uuid.UUID) (*ShopOrder, error) {
	var order ShopOrder
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

// List returns a page of the clinic's orders, newest first.
func (r *Repository) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*ShopOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&ShopOrder{}).Where("clinic_id = ?", clinicID)
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
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

	var orders []*ShopOrder
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error
	return orders, total, err
}

// UpdateNotes changes the free-form notes. Notes are an annotation, so
// this works in any state, terminal ones included.
func (r *Repository) UpdateNotes(ctx context.Context, clinicID, id uuid.UUID, notes string) error {
	res := r.db.WithContext(ctx).
		Model(&ShopOrder{}).
		Where("id = ? AND clinic_id = ?", id, clinicID).
		Update("notes", notes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrAggregateNotFound
	}
	return nil
}

// LoadForUpdate implements engine.AggregateStore.
func (r *Repository) LoadForUpdate(ctx context.Context, tx *gorm.DB, clinicID, id uuid.UUID) (engine.Aggregate, error) {
	var order ShopOrder
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
	order, ok := agg.(*ShopOrder)
	if !ok {
		return engine.ErrAggregateNotFound
	}

	res := tx.WithContext(ctx).
		Model(&ShopOrder{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(map[string]any{
			"state":            order.State,
			"total":            order.Total,
			"recipient":        order.Recipient,
			"address":          order.Address,
			"carrier":          order.Carrier,
			"tracking_no":      order.TrackingNo,
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
