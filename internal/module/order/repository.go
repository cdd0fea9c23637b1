package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrOrderNotFound is returned when an order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Repository defines the read access the payment core has to orders.
// Payment-state writes happen inside the payment module's transactional
// repository so that transaction and order updates commit as one unit.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var ord Order
	err := r.db.WithContext(ctx).First(&ord, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &ord, nil
}
