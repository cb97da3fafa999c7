package invoice

import (
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
)

// InvoiceItemRequest is one billed line of a new invoice request.
type InvoiceItemRequest struct {
	Description string `json:"description" binding:"required"`
	Quantity    int64  `json:"quantity" binding:"required,gt=0"`
	UnitPrice   int64  `json:"unit_price" binding:"gte=0"`
}

// CreateInvoiceRequest is the request to issue a new invoice.
type CreateInvoiceRequest struct {
	PatientID string               `json:"patient_id" binding:"required,uuid"`
	Items     []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
}

// PaymentRequest is the request to settle a payment.
type PaymentRequest struct {
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Method    string `json:"method" binding:"required"`
	Reference string `json:"reference"`
}

// CancelInvoiceRequest is the request to void an invoice.
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// InvoiceItemResponse is the API representation of an invoice line.
type InvoiceItemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

// PaymentResponse is the API representation of a settled payment.
type PaymentResponse struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method,omitempty"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InvoiceResponse is the API representation of an invoice.
type InvoiceResponse struct {
	ID             string                `json:"id"`
	Number         string                `json:"number"`
	State          string                `json:"state"`
	PatientID      string                `json:"patient_id,omitempty"`
	Total          int64                 `json:"total"`
	Settled        int64                 `json:"settled"`
	Outstanding    int64                 `json:"outstanding"`
	Notes          string                `json:"notes,omitempty"`
	Items          []InvoiceItemResponse `json:"items,omitempty"`
	Payments       []PaymentResponse     `json:"payments,omitempty"`
	AllowedTargets []string              `json:"allowed_targets"`
	StateChangedAt time.Time             `json:"state_changed_at"`
	CreatedAt      time.Time             `json:"created_at"`
}

// InvoiceToResponse converts an invoice to its API representation.
func InvoiceToResponse(i *Invoice, allowed []engine.State) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             i.ID.String(),
		Number:         i.Number,
		State:          string(i.State),
		Total:          i.Total,
		Settled:        i.Settled,
		Outstanding:    i.Outstanding,
		Notes:          i.Notes,
		AllowedTargets: make([]string, 0, len(allowed)),
		StateChangedAt: i.StateChangedAt,
		CreatedAt:      i.CreatedAt,
	}
	if i.PatientID != uuid.Nil {
		resp.PatientID = i.PatientID.String()
	}
	for _, target := range allowed {
		resp.AllowedTargets = append(resp.AllowedTargets, string(target))
	}
	for _, item := range i.Items {
		resp.Items = append(resp.Items, InvoiceItemResponse{
			ID:          item.ID.String(),
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	for _, p := range i.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:        p.ID.String(),
			Amount:    p.Amount,
			Method:    p.Method,
			Reference: p.Reference,
			CreatedAt: p.CreatedAt,
		})
	}
	return resp
}
