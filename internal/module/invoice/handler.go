package invoice

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

// Handler handles HTTP requests for invoices.
type Handler struct {
	service *Service
}

// NewHandler creates a new invoice handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers invoice routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	invoices := r.Group("/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.GET("/:id/history", h.GetHistory)
		invoices.POST("/:id/payments", h.RecordPayment)
		invoices.POST("/:id/cancel", h.Cancel)
	}
}

// CreateInvoice issues a new invoice.
//
//	@Summary	Create invoice
//	@Tags		Invoices
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		CreateInvoiceRequest	true	"Invoice"
//	@Success	201		{object}	InvoiceResponse
//	@Router		/invoices [post]
func (h *Handler) CreateInvoice(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
		return
	}

	items := make([]NewInvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, NewInvoiceItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	inv, err := h.service.Create(c.Request.Context(), clinicID, patientID, items)
	if err != nil {
		handleInvoiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invoice": h.toResponse(inv)})
}

// ListInvoices returns a page of the clinic's invoices.
//
//	@Summary	List invoices
//	@Tags		Invoices
//	@Produce	json
//	@Security	BearerAuth
//	@Param		state		query		string	false	"Filter by state"
//	@Param		patient_id	query		string	false	"Filter by patient"
//	@Param		page		query		int		false	"Page number"
//	@Param		page_size	query		int		false	"Page size"
//	@Success	200			{object}	map[string]interface{}
//	@Router		/invoices [get]
func (h *Handler) ListInvoices(c *gin.Context) {
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

	invoices, total, err := h.service.List(c.Request.Context(), clinicID, filter)
	if err != nil {
		handleInvoiceError(c, err)
		return
	}

	out := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, h.toResponse(inv))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": out, "total": total})
}

// GetInvoice returns one invoice.
//
//	@Summary	Get invoice
//	@Tags		Invoices
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Invoice ID"
//	@Success	200	{object}	InvoiceResponse
//	@Router		/invoices/{id} [get]
func (h *Handler) GetInvoice(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	inv, err := h.service.Get(c.Request.Context(), clinicID, id)
	if err != nil {
		handleInvoiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": h.toResponse(inv)})
}

// GetHistory returns the invoice's transition records, oldest first.
//
//	@Summary	Get invoice history
//	@Tags		Invoices
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Invoice ID"
//	@Success	200	{object}	map[string]interface{}
//	@Router		/invoices/{id}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	records, err := h.service.History(c.Request.Context(), clinicID, id)
	if err != nil {
		handleInvoiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": records})
}

// RecordPayment settles a payment against the invoice.
//
//	@Summary	Record invoice payment
//	@Tags		Invoices
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Invoice ID"
//	@Param		request	body		PaymentRequest	true	"Payment"
//	@Success	200		{object}	InvoiceResponse
//	@Router		/invoices/{id}/payments [post]
func (h *Handler) RecordPayment(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv, err := h.service.RecordPayment(c.Request.Context(), clinicID, id, req.Amount, req.Method, req.Reference, actor)
	if err != nil {
		handleInvoiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": h.toResponse(inv)})
}

// Cancel voids an invoice that has no settled payments.
//
//	@Summary	Cancel invoice
//	@Tags		Invoices
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Invoice ID"
//	@Param		request	body		CancelInvoiceRequest	true	"Cancellation reason"
//	@Success	200		{object}	InvoiceResponse
//	@Router		/invoices/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	actor := middleware.GetActorID(c).String()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv, err := h.service.Cancel(c.Request.Context(), clinicID, id, req.Reason, actor)
	if err != nil {
		handleInvoiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoice": h.toResponse(inv)})
}

func (h *Handler) toResponse(inv *Invoice) InvoiceResponse {
	return InvoiceToResponse(inv, h.service.AllowedTransitions(inv.State))
}

// handleInvoiceError maps engine and ledger errors to HTTP responses.
func handleInvoiceError(c *gin.Context, err error) {
	var excessErr *ledger.ExcessPaymentError
	switch {
	case errors.Is(err, engine.ErrAggregateNotFound), errors.Is(err, ledger.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.As(err, &excessErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       excessErr.Error(),
			"amount":      excessErr.Amount,
			"outstanding": excessErr.Outstanding,
		})
	case errors.Is(err, engine.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
