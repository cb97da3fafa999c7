package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransitionRecord is the append-only audit trail of executed transitions.
// Rows are created once inside the transition's transaction and never
// updated or deleted.
type TransitionRecord struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AggregateID uuid.UUID `json:"aggregate_id" gorm:"type:uuid;not null;index"`
	Kind        Kind      `json:"kind" gorm:"not null"`
	FromState   State     `json:"from_state" gorm:"not null"`
	ToState     State     `json:"to_state" gorm:"not null"`
	Actor       string    `json:"actor,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Digest      string    `json:"digest,omitempty"` // hex SHA-256, critical transitions only
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (TransitionRecord) TableName() string {
	return "transition_records"
}

// RecordRepository persists transition records.
type RecordRepository interface {
	Create(ctx context.Context, tx *gorm.DB, rec *TransitionRecord) error
	ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*TransitionRecord, error)
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new transition record repository.
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Create(ctx context.Context, tx *gorm.DB, rec *TransitionRecord) error {
	return tx.WithContext(ctx).Create(rec).Error
}

func (r *recordRepository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*TransitionRecord, error) {
	var records []*TransitionRecord
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}
