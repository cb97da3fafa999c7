package ledger

import (
	"errors"
	"net/http"

	"github.com/clinicore/server/internal/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for ledger resources.
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers resource routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	resources := r.Group("/resources")
	{
		resources.POST("", h.CreateStockItem)
		resources.GET("", h.ListResources)
		resources.GET("/:id", h.GetResource)
		resources.POST("/:id/restock", h.Restock)
	}
}

// CreateStockItem registers a new stocked product.
//
//	@Summary	Create stock item
//	@Tags		Ledger
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		CreateStockItemRequest	true	"Stock item"
//	@Success	201		{object}	ResourceResponse
//	@Router		/resources [post]
func (h *Handler) CreateStockItem(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	var req CreateStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.CreateStockItem(c.Request.Context(), clinicID,
		req.Name, req.SKU, req.Unit, req.UnitPrice, req.InitialQty, req.Tags)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"resource": ResourceToResponse(res)})
}

// ListResources returns the clinic's ledger resources.
//
//	@Summary	List resources
//	@Tags		Ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Param		kind	query		string	false	"Filter by kind (stock, receivable)"
//	@Success	200		{object}	map[string]interface{}
//	@Router		/resources [get]
func (h *Handler) ListResources(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)
	kind := ResourceKind(c.Query("kind"))

	resources, err := h.service.List(c.Request.Context(), clinicID, kind)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	out := make([]ResourceResponse, 0, len(resources))
	for _, r := range resources {
		out = append(out, ResourceToResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"resources": out})
}

// GetResource returns one ledger resource.
//
//	@Summary	Get resource
//	@Tags		Ledger
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Resource ID"
//	@Success	200	{object}	ResourceResponse
//	@Router		/resources/{id} [get]
func (h *Handler) GetResource(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
		return
	}

	res, err := h.service.Get(c.Request.Context(), clinicID, id)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resource": ResourceToResponse(res)})
}

// Restock raises a stock item's capacity.
//
//	@Summary	Restock item
//	@Tags		Ledger
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Resource ID"
//	@Param		request	body		RestockRequest	true	"Restock request"
//	@Success	200		{object}	ResourceResponse
//	@Router		/resources/{id}/restock [post]
func (h *Handler) Restock(c *gin.Context) {
	clinicID := middleware.GetClinicID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource id"})
		return
	}

	var req RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.Restock(c.Request.Context(), clinicID, id, req.Quantity)
	if err != nil {
		handleLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resource": ResourceToResponse(res)})
}

// handleLedgerError maps module errors to HTTP responses.
func handleLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrResourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrResourceKindMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
