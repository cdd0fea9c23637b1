package payment

import (
	"errors"
	"net/http"

	"github.com/dukkan/server/internal/module/audit"
	apperrors "github.com/dukkan/server/internal/shared/errors"
	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/:transaction_id", h.GetTransaction)
		payments.PATCH("/:transaction_id/status", h.UpdateStatus)
	}
}

// CreatePayment creates a payment transaction for an order.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationError(err.Error()))
		return
	}

	result := h.service.CreatePayment(c.Request.Context(), &req, &audit.NetworkContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTransaction returns a payment transaction by its external id.
func (h *Handler) GetTransaction(c *gin.Context) {
	txn, err := h.service.GetTransaction(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			respondError(c, apperrors.NotFound("transaction"))
			return
		}
		respondError(c, apperrors.Internal("failed to load transaction", err))
		return
	}
	c.JSON(http.StatusOK, txn)
}

// UpdateStatusRequest is a manual status override.
type UpdateStatusRequest struct {
	Status  Status                 `json:"status" binding:"required"`
	Details map[string]interface{} `json:"details"`
	Actor   string                 `json:"actor" binding:"required"`
}

// UpdateStatus applies an administrative status override to a transaction.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationError(err.Error()))
		return
	}

	err := h.service.UpdatePaymentStatus(c.Request.Context(), c.Param("transaction_id"), req.Status, req.Details, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			respondError(c, apperrors.NotFound("transaction"))
		case errors.Is(err, ErrInvalidTransition):
			respondError(c, apperrors.Conflict(err.Error()))
		default:
			respondError(c, apperrors.Internal("failed to update status", err))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// respondError writes a structured error response.
func respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.StatusCode, err.ToResponse())
}
