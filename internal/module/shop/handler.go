package shop

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/clinicore/server/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for shop orders.
type Handler struct {
	service *Service
}

// NewHandler creates a new shop order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers order routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	orders := r.Group("/shop-orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/history", h.GetHistory)
		orders.PATCH("/:id/notes", h.UpdateNotes)
		orders.POST("/:id/pay", h.Pay)
		orders.POST("/:id/process", h.StartProcessing)
		orders.POST("/:id/ship", h.Ship)
		orders.POST("/:id/deliver", h.Deliver)
		orders.POST("/:id/cancel", h.Cancel)
		orders.POST("/:id/refund", h.Refund)
	}
}

// CreateOrder places a new shop order.
//
//	@Summary	Create shop order
//	@Tags		ShopOrders
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		CreateOrderRequest	true	"Order"
//	@Success	201		{object}	OrderResponse
//	@Router		/shop-orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var patientID uuid.UUID
	if req.PatientID != "" {
		patientID, _ = uuid.Parse(req.PatientID)
	}

	items := make([]NewOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		resourceID, err := uuid.Parse(item.ResourceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
			return
		}
		items = append(items, NewOrderItem{
			ResourceID: resourceID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Discount:   item.Discount,
		})
	}

	order, err := h.service.Create(c.Request.Context(), clinicID, patientID, req.Recipient, req.Address, items)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": h.toResponse(order)})
}

// ListOrders returns a page of the clinic's shop orders.
//
//	@Summary	List shop orders
//	@Tags		ShopOrders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		state		query		string	false	"Filter by state"
//	@Param		page		query		int		false	"Page number"
//	@Param		page_size	query		int		false	"Page size"
//	@Success	200			{object}	map[string]interface{}
//	@Router		/shop-orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.service.List(c.Request.Context(), clinicID, ListFilter{
		State:    engine.State(c.Query("state")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		handleOrderError(c, err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, h.toResponse(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": total})
}

// GetOrder returns one shop order.
//
//	@Summary	Get shop order
//	@Tags		ShopOrders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	OrderResponse
//	@Router		/shop-orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.service.Get(c.Request.Context(), clinicID, id)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

// GetHistory returns the order's transition records, oldest first.
//
//	@Summary	Get shop order history
//	@Tags		ShopOrders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	map[string]interface{}
//	@Router		/shop-orders/{id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	records, err := h.service.History(c.Request.Context(), clinicID, id)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": records})
}

// UpdateNotes changes the order's notes. Works in any state.
//
//	@Summary	Update shop order notes
//	@Tags		ShopOrders
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path	string				true	"Order ID"
//	@Param		request	body	UpdateNotesRequest	true	"Notes"
//	@Success	204
//	@Router		/shop-orders/{id}/notes [patch]
func (h *Handler) UpdateNotes(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateNotes(c.Request.Context(), clinicID, id, req.Notes); err != nil {
		handleOrderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Pay marks the order as paid.
//
//	@Summary	Pay shop order
//	@Tags		ShopOrders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	OrderResponse
//	@Router		/shop-orders/{id}/pay [post]
func (h *Handler) Pay(c *gin.Context) {
	h.simpleTransition(c, h.service.Pay)
}

// StartProcessing begins fulfillment, consuming stock.
//
//	@Summary	Start processing shop order
//	@Tags		ShopOrders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	OrderResponse
//	@Router		/shop-orders/{id}/process [post]
func (h *Handler) StartProcessing(c *gin.Context) {
	h.simpleTransition(c, h.service.StartProcessing)
}

// Ship marks the order as shipped.
//
//	@Summary	Ship shop order
//	@Tags		ShopOrders
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string		true	"Order ID"
//	@Param		request	body		ShipRequest	true	"Shipping info"
//	@Success	200		{object}	OrderResponse
//	@Router		/shop-orders/{id}/ship [post]
func (h *Handler) Ship(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.Ship(c.Request.Context(), clinicID, id, req.Carrier, req.TrackingNo, actor)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

// Deliver marks the order as delivered.
//
//	@Summary	Deliver shop order
//	@Tags		ShopOrders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	OrderResponse
//	@Router		/shop-orders/{id}/deliver [post]
func (h *Handler) Deliver(c *gin.Context) {
	h.simpleTransition(c, h.service.Deliver)
}

// Cancel cancels the order.
//
//	@Summary	Cancel shop order
//	@Tags		ShopOrders
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Order ID"
//	@Param		request	body		CancelRequest	true	"Cancellation reason"
//	@Success	200		{object}	OrderResponse
//	@Router		/shop-orders/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	h.reasonTransition(c, h.service.Cancel)
}

// Refund refunds the order.
//
//	@Summary	Refund shop order
//	@Tags		ShopOrders
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Order ID"
//	@Param		request	body		CancelRequest	true	"Refund reason"
//	@Success	200		{object}	OrderResponse
//	@Router		/shop-orders/{id}/refund [post]
func (h *Handler) Refund(c *gin.Context) {
	h.reasonTransition(c, h.service.Refund)
}

type transitionFunc func(ctx context.Context, clinicID, id uuid.UUID, actor string) (*ShopOrder, error)

type reasonTransitionFunc func(ctx context.Context, clinicID, id uuid.UUID, reason, actor string) (*ShopOrder, error)

func (h *Handler) simpleTransition(c *gin.Context, fn transitionFunc) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := fn(c.Request.Context(), clinicID, id, actor)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

func (h *Handler) reasonTransition(c *gin.Context, fn reasonTransitionFunc) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := fn(c.Request.Context(), clinicID, id, req.Reason, actor)
	if err != nil {
		handleOrderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

func (h *Handler) toResponse(order *ShopOrder) OrderResponse {
	return OrderToResponse(order, h.service.AllowedTransitions(order.State))
}

// handleOrderError maps engine and ledger errors to HTTP responses.
func handleOrderError(c *gin.Context, err error) {
	var stockErr *ledger.InsufficientStockError
	switch {
	case errors.Is(err, engine.ErrAggregateNotFound), errors.Is(err, ledger.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     stockErr.Error(),
			"resource":  stockErr.ResourceID.String(),
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	case errors.Is(err, engine.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
