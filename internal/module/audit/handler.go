package audit

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/dukkan/server/internal/shared/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdentifierBlocker is the abuse-control capability consumed by operator
// flows. The payment state machine itself never blocks identifiers.
type IdentifierBlocker interface {
	BlockIdentifier(ctx context.Context, identifierType, value string, durationMinutes int) error
	UnblockIdentifier(ctx context.Context, identifierType, value string) error
}

// Handler exposes the operator review surface: open security events,
// resolution, and identifier blocking.
type Handler struct {
	repo    Repository
	logger  *Logger
	blocker IdentifierBlocker
}

// NewHandler creates a new audit handler.
func NewHandler(repo Repository, logger *Logger, blocker IdentifierBlocker) *Handler {
	return &Handler{repo: repo, logger: logger, blocker: blocker}
}

// RegisterRoutes registers the operator routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	security := r.Group("/security-events")
	{
		security.GET("", h.ListOpen)
		security.POST("/:id/resolve", h.Resolve)
	}
	blocks := r.Group("/blocks")
	{
		blocks.POST("", h.Block)
		blocks.DELETE("", h.Unblock)
	}
}

// ListOpen returns open security events for review.
func (h *Handler) ListOpen(c *gin.Context) {
	events, err := h.repo.ListOpenSecurityEvents(c.Request.Context(), 100)
	if err != nil {
		respondError(c, apperrors.Internal("failed to list security events", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"security_events": events})
}

// ResolveRequest identifies the resolving operator.
type ResolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

// Resolve marks a security event as reviewed.
func (h *Handler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.ValidationError("invalid event id"))
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationError(err.Error()))
		return
	}

	if err := h.logger.Resolve(c.Request.Context(), id, req.ResolvedBy); err != nil {
		if errors.Is(err, ErrSecurityEventNotFound) {
			respondError(c, apperrors.NotFound("security event"))
			return
		}
		respondError(c, apperrors.Internal("failed to resolve security event", err))
		return
	}

	h.logger.AdminAction(c.Request.Context(), req.ResolvedBy, "security_event_resolved", "security_event", id.String(), nil, &NetworkContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// BlockRequest blocks an identifier for a bounded duration.
type BlockRequest struct {
	IdentifierType  string `json:"identifier_type" binding:"required"`
	Value           string `json:"value" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
	AdminID         string `json:"admin_id" binding:"required"`
}

// Block blocks an identifier.
func (h *Handler) Block(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationError(err.Error()))
		return
	}

	if err := h.blocker.BlockIdentifier(c.Request.Context(), req.IdentifierType, req.Value, req.DurationMinutes); err != nil {
		respondError(c, apperrors.Internal("failed to block identifier", err))
		return
	}

	h.logger.AdminAction(c.Request.Context(), req.AdminID, "identifier_blocked", "identifier", req.IdentifierType+":"+req.Value, map[string]interface{}{
		"duration_minutes": req.DurationMinutes,
	}, &NetworkContext{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()})
	c.JSON(http.StatusOK, gin.H{"status": "blocked"})
}

// UnblockRequest removes a block from an identifier.
type UnblockRequest struct {
	IdentifierType string `json:"identifier_type" binding:"required"`
	Value          string `json:"value" binding:"required"`
	AdminID        string `json:"admin_id" binding:"required"`
}

// Unblock removes a block.
func (h *Handler) Unblock(c *gin.Context) {
	var req UnblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ValidationError(err.Error()))
		return
	}

	if err := h.blocker.UnblockIdentifier(c.Request.Context(), req.IdentifierType, req.Value); err != nil {
		respondError(c, apperrors.Internal("failed to unblock identifier", err))
		return
	}

	h.logger.AdminAction(c.Request.Context(), req.AdminID, "identifier_unblocked", "identifier", req.IdentifierType+":"+req.Value, nil, &NetworkContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "unblocked"})
}

// respondError writes a structured error response.
func respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.StatusCode, err.ToResponse())
}
