package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockResource(capacity, consumed int64) *Resource {
	return &Resource{
		ID:       uuid.New(),
		ClinicID: uuid.New(),
		Kind:     ResourceKindStock,
		Name:     "Amoxicillin 500mg",
		Capacity: capacity,
		Consumed: consumed,
	}
}

func receivable(faceValue, settled int64) *Resource {
	return &Resource{
		ID:       uuid.New(),
		ClinicID: uuid.New(),
		Kind:     ResourceKindReceivable,
		Name:     "INV-20240101-ABCDE",
		Capacity: faceValue,
		Consumed: settled,
	}
}

func TestResource_Consume(t *testing.T) {
	tests := []struct {
		name     string
		capacity int64
		consumed int64
		qty      int64
		wantErr  bool
	}{
		{"exact fit", 10, 8, 2, false},
		{"plenty available", 100, 0, 1, false},
		{"one over", 10, 8, 3, true},
		{"zero qty", 10, 0, 0, true},
		{"negative qty", 10, 0, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := stockResource(tt.capacity, tt.consumed)
			err := r.Consume(tt.qty)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.consumed, r.Consumed, "failed consume must not mutate")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.consumed+tt.qty, r.Consumed)
			}
		})
	}
}

func TestResource_Consume_InsufficientStockDetail(t *testing.T) {
	r := stockResource(10, 8)
	err := r.Consume(3)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, r.ID, stockErr.ResourceID)
	assert.Equal(t, int64(3), stockErr.Requested)
	assert.Equal(t, int64(2), stockErr.Available)
	assert.Equal(t, int64(8), r.Consumed)
}

func TestResource_Consume_KindMismatch(t *testing.T) {
	r := receivable(1000, 0)
	assert.ErrorIs(t, r.Consume(1), ErrResourceKindMismatch)
}

func TestResource_Release(t *testing.T) {
	r := stockResource(10, 5)

	require.NoError(t, r.Release(3))
	assert.Equal(t, int64(2), r.Consumed)

	// Releasing more than consumed is a defect, never a clamp.
	err := r.Release(5)
	assert.ErrorIs(t, err, ErrReleaseUnderflow)
	assert.Equal(t, int64(2), r.Consumed)
}

func TestResource_ConsumeRelease_RoundTrip(t *testing.T) {
	r := stockResource(10, 4)

	require.NoError(t, r.Consume(3))
	require.NoError(t, r.Release(3))
	assert.Equal(t, int64(4), r.Consumed)
}

func TestResource_Settle(t *testing.T) {
	r := receivable(100000, 0)

	require.NoError(t, r.Settle(40000))
	assert.Equal(t, int64(40000), r.Consumed)
	assert.Equal(t, int64(60000), r.Available())

	require.NoError(t, r.Settle(60000))
	assert.Equal(t, int64(0), r.Available())

	// Fully settled receivable accepts nothing more.
	err := r.Settle(1)
	var excessErr *ExcessPaymentError
	require.ErrorAs(t, err, &excessErr)
	assert.Equal(t, int64(0), excessErr.Outstanding)
}

func TestResource_Settle_Excess(t *testing.T) {
	r := receivable(100000, 40000)

	err := r.Settle(60001)
	var excessErr *ExcessPaymentError
	require.ErrorAs(t, err, &excessErr)
	assert.Equal(t, int64(60001), excessErr.Amount)
	assert.Equal(t, int64(60000), excessErr.Outstanding)
	assert.Equal(t, int64(40000), r.Consumed)
}

func TestResource_Settle_InvalidAmount(t *testing.T) {
	r := receivable(100000, 0)
	assert.ErrorIs(t, r.Settle(0), ErrInvalidQuantity)
	assert.ErrorIs(t, r.Settle(-5), ErrInvalidQuantity)
}

func TestResource_Settle_KindMismatch(t *testing.T) {
	r := stockResource(10, 0)
	err := r.Settle(1)
	assert.True(t, errors.Is(err, ErrResourceKindMismatch))
}
