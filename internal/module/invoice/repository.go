package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter narrows and pages invoice listings.
type ListFilter struct {
	State     engine.State
	PatientID uuid.UUID
	Page      int
	PageSize  int
}

// Repository persists invoices. It serves as the engine's aggregate store
// for the invoice kind and as the payment recorder for settle hooks.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new invoice repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateInTx persists a new invoice with its line items inside the
// caller's transaction.
func (r *Repository) CreateInTx(ctx context.Context, tx *gorm.DB, inv *Invoice) error {
	return tx.WithContext(ctx).Create(inv).Error
}

// Get returns an invoice with its line items and payments.
func (r *Repository) Get(ctx context.Context, clinicID, id uuid.UUID) (*Invoice, error) {
	var inv Invoice
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		First(&inv, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrAggregateNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// List returns a page of the clinic's invoices, newest first.
func (r *Repository) List(ctx context.Context, clinicID uuid.UUID, filter ListFilter) ([]*Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&Invoice{}).Where("clinic_id = ?", clinicID)
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

	var invoices []*Invoice
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&invoices).Error
	return invoices, total, err
}

// RecordPayment implements PaymentRecorder.
func (r *Repository) RecordPayment(ctx context.Context, tx *gorm.DB, payment *Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

// LoadForUpdate implements engine.AggregateStore.
func (r *Repository) LoadForUpdate(ctx context.Context, tx *gorm.DB, clinicID, id uuid.UUID) (engine.Aggregate, error) {
	var inv Invoice
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		First(&inv, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, engine.ErrAggregateNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Save implements engine.AggregateStore with an optimistic version check.
func (r *Repository) Save(ctx context.Context, tx *gorm.DB, agg engine.Aggregate) error {
	inv, ok := agg.(*Invoice)
	if !ok {
		return engine.ErrAggregateNotFound
	}

	res := tx.WithContext(ctx).
		Model(&Invoice{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]any{
			"state":            inv.State,
			"settled":          inv.Settled,
			"outstanding":      inv.Outstanding,
			"state_changed_at": inv.StateChangedAt,
			"version":          inv.Version + 1,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrConflict
	}
	inv.Version++
	return nil
}
