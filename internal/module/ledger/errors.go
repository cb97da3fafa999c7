package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Module errors.
var (
	ErrResourceNotFound     = errors.New("ledger resource not found")
	ErrResourceKindMismatch = errors.New("operation not valid for resource kind")
	ErrReleaseUnderflow     = errors.New("release would drive consumed quantity negative")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
)

// InsufficientStockError is returned when a consume request exceeds the
// available stock of a resource. The whole transition that issued it must
// be rolled back.
type InsufficientStockError struct {
	ResourceID uuid.UUID
	Name       string
	Requested  int64
	Available  int64
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (%s): requested %d, available %d",
		e.Name, e.ResourceID, e.Requested, e.Available)
}

// ExcessPaymentError is returned when a settlement exceeds the outstanding
// balance of a receivable.
type ExcessPaymentError struct {
	ResourceID  uuid.UUID
	Amount      int64
	Outstanding int64
}

// Error implements the error interface.
func (e *ExcessPaymentError) Error() string {
	return fmt.Sprintf("payment of %d exceeds outstanding balance %d on receivable %s",
		e.Amount, e.Outstanding, e.ResourceID)
}
