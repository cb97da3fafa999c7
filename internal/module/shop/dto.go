package shop

import (
	"time"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/google/uuid"
)

// OrderItemRequest is one line of a new order request.
type OrderItemRequest struct {
	ResourceID string `json:"resource_id" binding:"required,uuid"`
	Name       string `json:"name" binding:"required"`
	Quantity   int64  `json:"quantity" binding:"required,gt=0"`
	UnitPrice  int64  `json:"unit_price" binding:"gte=0"`
	Discount   int64  `json:"discount" binding:"gte=0"`
}

// CreateOrderRequest is the request to place a new shop order.
type CreateOrderRequest struct {
	PatientID string             `json:"patient_id" binding:"omitempty,uuid"`
	Recipient string             `json:"recipient"`
	Address   string             `json:"address"`
	Items     []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ShipRequest is the request to mark an order as shipped.
type ShipRequest struct {
	Carrier    string `json:"carrier" binding:"required"`
	TrackingNo string `json:"tracking_no"`
}

// CancelRequest is the request to cancel or refund an order.
type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// UpdateNotesRequest is the request to change an order's notes.
type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// OrderItemResponse is the API representation of an order line.
type OrderItemResponse struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Discount   int64  `json:"discount,omitempty"`
	Subtotal   int64  `json:"subtotal"`
}

// OrderResponse is the API representation of a shop order.
type OrderResponse struct {
	ID             string              `json:"id"`
	Number         string              `json:"number"`
	State          string              `json:"state"`
	PatientID      string              `json:"patient_id,omitempty"`
	Total          int64               `json:"total"`
	Recipient      string              `json:"recipient,omitempty"`
	Address        string              `json:"address,omitempty"`
	Carrier        string              `json:"carrier,omitempty"`
	TrackingNo     string              `json:"tracking_no,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	Items          []OrderItemResponse `json:"items,omitempty"`
	AllowedTargets []string            `json:"allowed_targets"`
	StateChangedAt time.Time           `json:"state_changed_at"`
	CreatedAt      time.Time           `json:"created_at"`
}

// OrderToResponse converts an order to its API representation.
func OrderToResponse(o *ShopOrder, allowed []engine.State) OrderResponse {
	resp := OrderResponse{
		ID:             o.ID.String(),
		Number:         o.Number,
		State:          string(o.State),
		Total:          o.Total,
		Recipient:      o.Recipient,
		Address:        o.Address,
		Carrier:        o.Carrier,
		TrackingNo:     o.TrackingNo,
		Notes:          o.Notes,
		AllowedTargets: make([]string, 0, len(allowed)),
		StateChangedAt: o.StateChangedAt,
		CreatedAt:      o.CreatedAt,
	}
	if o.PatientID != uuid.Nil {
		resp.PatientID = o.PatientID.String()
	}
	for _, target := range allowed {
		resp.AllowedTargets = append(resp.AllowedTargets, string(target))
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:         item.ID.String(),
			ResourceID: item.ResourceID.String(),
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Discount:   item.Discount,
			Subtotal:   item.Subtotal,
		})
	}
	return resp
}
