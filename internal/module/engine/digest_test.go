package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type digestAggregate struct {
	id    uuid.UUID
	total int64
}

func (d *digestAggregate) AggregateID() uuid.UUID            { return d.id }
func (d *digestAggregate) AggregateKind() Kind               { return kindTest }
func (d *digestAggregate) CurrentState() State               { return "done" }
func (d *digestAggregate) SetCurrentState(State, time.Time)  {}
func (d *digestAggregate) LedgerItems() []LineItem           { return nil }
func (d *digestAggregate) TotalAmount() int64                { return d.total }

func TestComputeDigest(t *testing.T) {
	agg := &digestAggregate{id: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), total: 12500}
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	first := computeDigest(agg, "reserved", "done", "staff-1", at)
	second := computeDigest(agg, "reserved", "done", "staff-1", at)

	assert.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
	assert.Equal(t, first, second, "same inputs must produce the same digest")

	assert.NotEqual(t, first, computeDigest(agg, "reserved", "done", "staff-2", at))
	assert.NotEqual(t, first, computeDigest(agg, "draft", "done", "staff-1", at))
	assert.NotEqual(t, first, computeDigest(agg, "reserved", "done", "staff-1", at.Add(time.Second)))

	tampered := &digestAggregate{id: agg.id, total: agg.total + 1}
	assert.NotEqual(t, first, computeDigest(tampered, "reserved", "done", "staff-1", at))
}
