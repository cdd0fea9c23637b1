package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukkan/server/internal/module/crypto"
	"github.com/dukkan/server/internal/module/kashier"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrStoreNotFound is returned when a store does not exist.
var ErrStoreNotFound = errors.New("store not found")

// Repository defines the interface for store data access.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Store, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new store repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Store, error) {
	var s Store
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &s, nil
}

// ConfigResolver resolves the gateway configuration for a tenant, falling
// back to the process-wide configuration when the tenant carries no
// credentials of its own.
type ConfigResolver struct {
	repo     Repository
	crypto   *crypto.Service
	fallback kashier.Config
	logger   *zap.Logger
}

// NewConfigResolver creates a resolver with the given fallback config.
func NewConfigResolver(repo Repository, cryptoSvc *crypto.Service, fallback kashier.Config, logger *zap.Logger) *ConfigResolver {
	return &ConfigResolver{
		repo:     repo,
		crypto:   cryptoSvc,
		fallback: fallback,
		logger:   logger,
	}
}

// Resolve returns the merchant configuration for a store. Missing store,
// missing credentials, or a decryption failure all fall back to the global
// configuration; payment creation must not break on tenant misconfiguration.
func (r *ConfigResolver) Resolve(ctx context.Context, storeID uuid.UUID) kashier.Config {
	s, err := r.repo.GetByID(ctx, storeID)
	if err != nil {
		if !errors.Is(err, ErrStoreNotFound) {
			r.logger.Warn("store lookup failed, using fallback gateway config",
				zap.String("store_id", storeID.String()),
				zap.Error(err),
			)
		}
		return r.fallback
	}

	if s.KashierMerchantID == "" || s.KashierAPIKey == "" {
		return r.fallback
	}

	apiKey, err := r.crypto.Decrypt(s.KashierAPIKey)
	if err != nil {
		r.logger.Error("failed to decrypt store api key, using fallback",
			zap.String("store_id", storeID.String()),
		)
		return r.fallback
	}

	cfg := r.fallback
	cfg.MerchantID = s.KashierMerchantID
	cfg.APIKey = apiKey
	if s.KashierAPISecret != "" {
		if secret, err := r.crypto.Decrypt(s.KashierAPISecret); err == nil {
			cfg.APISecret = secret
		}
	}
	if s.KashierMode != "" {
		cfg.Mode = s.KashierMode
	}
	return cfg
}

// AdapterFor returns a gateway adapter bound to the store's configuration.
func (r *ConfigResolver) AdapterFor(ctx context.Context, storeID uuid.UUID) *kashier.Adapter {
	return kashier.NewAdapter(r.Resolve(ctx, storeID))
}
