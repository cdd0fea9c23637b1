package ratelimit

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/dukkan/server/internal/shared/errors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter blocks abusive identifiers (IPs, emails, API keys) for a bounded
// duration. Backed by Redis so blocks are shared across instances.
type Limiter struct {
	client redis.UniversalClient
}

// NewLimiter creates a new limiter.
func NewLimiter(client redis.UniversalClient) *Limiter {
	return &Limiter{client: client}
}

func blockKey(identifierType, value string) string {
	return fmt.Sprintf("block:%s:%s", identifierType, value)
}

// BlockIdentifier blocks an identifier for the given number of minutes.
func (l *Limiter) BlockIdentifier(ctx context.Context, identifierType, value string, durationMinutes int) error {
	ttl := time.Duration(durationMinutes) * time.Minute
	if err := l.client.Set(ctx, blockKey(identifierType, value), "1", ttl).Err(); err != nil {
		return fmt.Errorf("block identifier: %w", err)
	}
	return nil
}

// UnblockIdentifier removes a block.
func (l *Limiter) UnblockIdentifier(ctx context.Context, identifierType, value string) error {
	if err := l.client.Del(ctx, blockKey(identifierType, value)).Err(); err != nil {
		return fmt.Errorf("unblock identifier: %w", err)
	}
	return nil
}

// IsBlocked reports whether an identifier is currently blocked.
func (l *Limiter) IsBlocked(ctx context.Context, identifierType, value string) (bool, error) {
	n, err := l.client.Exists(ctx, blockKey(identifierType, value)).Result()
	if err != nil {
		return false, fmt.Errorf("check identifier: %w", err)
	}
	return n > 0, nil
}

// BlockChecker is the read side of the limiter consumed by the middleware.
type BlockChecker interface {
	IsBlocked(ctx context.Context, identifierType, value string) (bool, error)
}

// BlockedIPs returns a middleware rejecting requests from blocked IPs.
// Redis errors fail open: an abuse-control outage must not take down
// payment traffic.
func BlockedIPs(checker BlockChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		blocked, err := checker.IsBlocked(c.Request.Context(), "ip", c.ClientIP())
		if err != nil {
			logger.Warn("block check failed", zap.Error(err))
			c.Next()
			return
		}
		if blocked {
			appErr := apperrors.RateLimited("too many requests, please try again later")
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		c.Next()
	}
}
