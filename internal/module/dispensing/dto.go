package dispensing

import (
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
)

// DispensingItemRequest is one prescribed line of a new order request.
type DispensingItemRequest struct {
	ResourceID string `json:"resource_id" binding:"required,uuid"`
	Name       string `json:"name" binding:"required"`
	Dosage     string `json:"dosage"`
	Quantity   int64  `json:"quantity" binding:"required,gt=0"`
	UnitPrice  int64  `json:"unit_price" binding:"gte=0"`
}

// CreateDispensingRequest is the request to register a dispensing order.
type CreateDispensingRequest struct {
	PatientID    string                  `json:"patient_id" binding:"required,uuid"`
	PrescriberID string                  `json:"prescriber_id" binding:"omitempty,uuid"`
	Items        []DispensingItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CancelDispensingRequest is the request to cancel a dispensing order.
type CancelDispensingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// DispensingItemResponse is the API representation of a dispensing line.
type DispensingItemResponse struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	Name       string `json:"name"`
	Dosage     string `json:"dosage,omitempty"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Subtotal   int64  `json:"subtotal"`
}

// DispensingResponse is the API representation of a dispensing order.
type DispensingResponse struct {
	ID             string                   `json:"id"`
	Number         string                   `json:"number"`
	State          string                   `json:"state"`
	PatientID      string                   `json:"patient_id,omitempty"`
	PrescriberID   string                   `json:"prescriber_id,omitempty"`
	Total          int64                    `json:"total"`
	Notes          string                   `json:"notes,omitempty"`
	Items          []DispensingItemResponse `json:"items,omitempty"`
	AllowedTargets []string                 `json:"allowed_targets"`
	StateChangedAt time.Time                `json:"state_changed_at"`
	CreatedAt      time.Time                `json:"created_at"`
}

// OrderToResponse converts a dispensing order to its API representation.
func OrderToResponse(o *DispensingOrder, allowed []engine.State) DispensingResponse {
	resp := DispensingResponse{
		ID:             o.ID.String(),
		Number:         o.Number,
		State:          string(o.State),
		Total:          o.Total,
		Notes:          o.Notes,
		AllowedTargets: make([]string, 0, len(allowed)),
		StateChangedAt: o.StateChangedAt,
		CreatedAt:      o.CreatedAt,
	}
	if o.PatientID != uuid.Nil {
		resp.PatientID = o.PatientID.String()
	}
	if o.PrescriberID != uuid.Nil {
		resp.PrescriberID = o.PrescriberID.String()
	}
	for _, target := range allowed {
		resp.AllowedTargets = append(resp.AllowedTargets, string(target))
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, DispensingItemResponse{
			ID:         item.ID.String(),
			ResourceID: item.ResourceID.String(),
			Name:       item.Name,
			Dosage:     item.Dosage,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Subtotal:   item.Subtotal,
		})
	}
	return resp
}
