package dispensing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/clinicore/server/internal/module/engine"
	"github.com/clinicore/server/internal/module/ledger"
	"github.com/clinicore/server/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for dispensing orders.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispensing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers dispensing routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	orders := r.Group("/dispensing-orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/history", h.GetHistory)
		orders.POST("/:id/dispatch", h.Dispatch)
		orders.POST("/:id/cancel", h.Cancel)
	}
}

// CreateOrder registers a new dispensing order.
//
//	@Summary	Create dispensing order
//	@Tags		Dispensing
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		CreateDispensingRequest	true	"Order"
//	@Success	201		{object}	DispensingResponse
//	@Router		/dispensing-orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	var req CreateDispensingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
		return
	}
	var prescriberID uuid.UUID
	if req.PrescriberID != "" {
		prescriberID, _ = uuid.Parse(req.PrescriberID)
	}

	items := make([]NewDispensingItem, 0, len(req.Items))
	for _, item := range req.Items {
		resourceID, err := uuid.Parse(item.ResourceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
			return
		}
		items = append(items, NewDispensingItem{
			ResourceID: resourceID,
			Name:       item.Name,
			Dosage:     item.Dosage,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}

	order, err := h.service.Create(c.Request.Context(), clinicID, patientID, prescriberID, items)
	if err != nil {
		handleDispensingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": h.toResponse(order)})
}

// ListOrders returns a page of the clinic's dispensing orders.
//
//	@Summary	List dispensing orders
//	@Tags		Dispensing
//	@Produce	json
//	@Security	BearerAuth
//	@Param		state		query		string	false	"Filter by state"
//	@Param		patient_id	query		string	false	"Filter by patient"
//	@Param		page		query		int		false	"Page number"
//	@Param		page_size	query		int		false	"Page size"
//	@Success	200			{object}	map[string]interface{}
//	@Router		/dispensing-orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := ListFilter{
		State:    engine.State(c.Query("state")),
		Page:     page,
		PageSize: pageSize,
	}
	if raw := c.Query("patient_id"); raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
			return
		}
		filter.PatientID = patientID
	}

	orders, total, err := h.service.List(c.Request.Context(), clinicID, filter)
	if err != nil {
		handleDispensingError(c, err)
		return
	}

	out := make([]DispensingResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, h.toResponse(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": total})
}

// GetOrder returns one dispensing order.
//
//	@Summary	Get dispensing order
//	@Tags		Dispensing
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	DispensingResponse
//	@Router		/dispensing-orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.service.Get(c.Request.Context(), clinicID, id)
	if err != nil {
		handleDispensingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

// GetHistory returns the order's transition records, oldest first.
//
//	@Summary	Get dispensing order history
//	@Tags		Dispensing
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	map[string]interface{}
//	@Router		/dispensing-orders/{id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	records, err := h.service.History(c.Request.Context(), clinicID, id)
	if err != nil {
		handleDispensingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": records})
}

// Dispatch hands the order to the patient.
//
//	@Summary	Dispatch dispensing order
//	@Tags		Dispensing
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Order ID"
//	@Success	200	{object}	DispensingResponse
//	@Router		/dispensing-orders/{id}/dispatch [post]
func (h *Handler) Dispatch(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.service.Dispatch(c.Request.Context(), clinicID, id, actor)
	if err != nil {
		handleDispensingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

// Cancel cancels a pending dispensing order.
//
//	@Summary	Cancel dispensing order
//	@Tags		Dispensing
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Order ID"
//	@Param		request	body		CancelDispensingRequest	true	"Cancellation reason"
//	@Success	200		{object}	DispensingResponse
//	@Router		/dispensing-orders/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req CancelDispensingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.Cancel(c.Request.Context(), clinicID, id, req.Reason, actor)
	if err != nil {
		handleDispensingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": h.toResponse(order)})
}

func (h *Handler) toResponse(order *DispensingOrder) DispensingResponse {
	return OrderToResponse(order, h.service.AllowedTransitions(order.State))
}

// handleDispensingError maps engine and ledger errors to HTTP responses.
func handleDispensingError(c *gin.Context, err error) {
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
