package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements inventory resource operations.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a new ledger service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateStockItem registers a new stocked product for a clinic.
func (s *Service) CreateStockItem(ctx context.Context, clinicID uuid.UUID, name, sku, unit string, unitPrice, initialQty int64, tags []string) (*Resource, error) {
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if initialQty < 0 {
		return nil, ErrInvalidQuantity
	}
	if unitPrice < 0 {
		return nil, fmt.Errorf("unit price cannot be negative")
	}

	res := &Resource{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		Kind:      ResourceKindStock,
		Name:      name,
		SKU:       sku,
		Unit:      unit,
		UnitPrice: unitPrice,
		Capacity:  initialQty,
		Tags:      tags,
	}

	if err := s.store.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	s.logger.Info("stock item created",
		zap.String("resource_id", res.ID.String()),
		zap.String("name", name),
		zap.Int64("initial_qty", initialQty),
	)

	return res, nil
}

// Restock raises the capacity of a stock item.
func (s *Service) Restock(ctx context.Context, clinicID, id uuid.UUID, qty int64) (*Resource, error) {
	res, err := s.store.Restock(ctx, clinicID, id, qty)
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock item restocked",
		zap.String("resource_id", id.String()),
		zap.Int64("qty", qty),
		zap.Int64("available", res.Available()),
	)

	return res, nil
}

// Get returns a resource by ID.
func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*Resource, error) {
	return s.store.Get(ctx, clinicID, id)
}

// List returns a clinic's resources, optionally filtered by kind.
func (s *Service) List(ctx context.Context, clinicID uuid.UUID, kind ResourceKind) ([]*Resource, error) {
	return s.store.List(ctx, clinicID, kind)
}
