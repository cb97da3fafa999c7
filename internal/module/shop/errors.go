package shop

import (
	"fmt"

	"github.com/clinicore/server/internal/module/engine"
)

// Order validation errors. All wrap engine.ErrValidation so handlers can
// map them uniformly.
var (
	ErrNoItems         = fmt.Errorf("%w: order requires at least one line item", engine.ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: line item quantity must be positive", engine.ErrValidation)
	ErrInvalidPrice    = fmt.Errorf("%w: unit price cannot be negative", engine.ErrValidation)
	ErrInvalidDiscount = fmt.Errorf("%w: discount cannot exceed the line subtotal", engine.ErrValidation)
)
