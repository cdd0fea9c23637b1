package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubChecker struct {
	blocked bool
	err     error
}

func (s *stubChecker) IsBlocked(_ context.Context, _, _ string) (bool, error) {
	return s.blocked, s.err
}

func newBlockedIPsRouter(checker BlockChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BlockedIPs(checker, zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestBlockedIPs(t *testing.T) {
	t.Run("Unblocked requests pass through", func(t *testing.T) {
		router := newBlockedIPsRouter(&stubChecker{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Blocked requests rejected with 429", func(t *testing.T) {
		router := newBlockedIPsRouter(&stubChecker{blocked: true})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	})

	t.Run("Checker failures fail open", func(t *testing.T) {
		router := newBlockedIPsRouter(&stubChecker{err: errors.New("connection refused")})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
