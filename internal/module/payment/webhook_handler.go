package payment

import (
	"io"

	"github.com/dukkan/server/internal/module/audit"
	apperrors "github.com/dukkan/server/internal/shared/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Header names used by the gateway on webhook deliveries.
const (
	HeaderSignature = "X-Kashier-Signature"
	HeaderTimestamp = "X-Kashier-Timestamp"
)

// WebhookHandler handles asynchronous gateway callbacks.
type WebhookHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service *Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/kashier", h.HandleKashierWebhook)
}

// HandleKashierWebhook handles an incoming gateway webhook. The raw body is
// read before any parsing so the signature covers the exact bytes sent.
func (h *WebhookHandler) HandleKashierWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		appErr := apperrors.BadRequest("failed to read request body")
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}

	outcome := h.service.HandleWebhook(
		c.Request.Context(),
		rawBody,
		c.GetHeader(HeaderSignature),
		c.GetHeader(HeaderTimestamp),
		&audit.NetworkContext{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
	)

	c.JSON(outcome.StatusCode, outcome)
}
