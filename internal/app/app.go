package app

import (
	"fmt"

	"github.com/dukkan/server/internal/module/audit"
	"github.com/dukkan/server/internal/module/crypto"
	"github.com/dukkan/server/internal/module/kashier"
	"github.com/dukkan/server/internal/module/order"
	"github.com/dukkan/server/internal/module/payment"
	"github.com/dukkan/server/internal/module/store"
	"github.com/dukkan/server/internal/shared/cache"
	"github.com/dukkan/server/internal/shared/config"
	"github.com/dukkan/server/internal/shared/database"
	"github.com/dukkan/server/internal/shared/metrics"
	"github.com/dukkan/server/internal/shared/middleware"
	"github.com/dukkan/server/internal/utils/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the payment core together: storage, gateway adapter, audit
// trail, and the HTTP surface.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
}

// New constructs the application with explicit dependency injection so
// every collaborator can be replaced by a test double.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	m := metrics.New("dukkan")

	cryptoSvc, err := crypto.NewService(&cfg.Security, logger)
	if err != nil {
		return nil, fmt.Errorf("init crypto: %w", err)
	}

	auditRepo := audit.NewRepository(db)
	auditLogger := audit.NewLogger(auditRepo, m, logger)

	adapter := kashier.NewAdapter(kashier.FromAppConfig(&cfg.Kashier))
	resolver := store.NewConfigResolver(store.NewRepository(db), cryptoSvc, adapter.Config(), logger)

	paymentSvc := payment.NewService(
		payment.NewRepository(db),
		order.NewRepository(db),
		adapter,
		resolver,
		auditLogger,
		m,
		logger,
	)

	limiter := ratelimit.NewLimiter(redisClient)

	router := gin.New()
	router.Use(
		middleware.Recovery(logger),
		middleware.Metrics(m),
		ratelimit.BlockedIPs(limiter, logger),
		cors.Default(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	payment.NewHandler(paymentSvc).RegisterRoutes(api)
	payment.NewWebhookHandler(paymentSvc, logger).RegisterRoutes(api.Group("/webhooks"))
	audit.NewHandler(auditRepo, auditLogger, limiter).RegisterRoutes(api.Group("/admin"))

	return &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		router: router,
	}, nil
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Close releases storage connections.
func (a *App) Close() {
	if err := cache.Close(a.redis); err != nil {
		a.logger.Warn("failed to close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}
