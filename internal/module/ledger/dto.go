package ledger

// CreateStockItemRequest is the request to register a stocked product.
type CreateStockItemRequest struct {
	Name       string   `json:"name" binding:"required"`
	SKU        string   `json:"sku"`
	Unit       string   `json:"unit"`
	UnitPrice  int64    `json:"unit_price"`
	InitialQty int64    `json:"initial_qty"`
	Tags       []string `json:"tags"`
}

// RestockRequest is the request to raise a stock item's capacity.
type RestockRequest struct {
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// ResourceResponse is the API representation of a ledger resource.
type ResourceResponse struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	SKU       string   `json:"sku,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	UnitPrice int64    `json:"unit_price,omitempty"`
	Capacity  int64    `json:"capacity"`
	Consumed  int64    `json:"consumed"`
	Available int64    `json:"available"`
	Tags      []string `json:"tags,omitempty"`
}

// ResourceToResponse converts a resource to its API representation.
func ResourceToResponse(r *Resource) ResourceResponse {
	return ResourceResponse{
		ID:        r.ID.String(),
		Kind:      string(r.Kind),
		Name:      r.Name,
		SKU:       r.SKU,
		Unit:      r.Unit,
		UnitPrice: r.UnitPrice,
		Capacity:  r.Capacity,
		Consumed:  r.Consumed,
		Available: r.Available(),
		Tags:      r.Tags,
	}
}
