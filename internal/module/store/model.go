package store

import (
	"time"

	"github.com/google/uuid"
)

// Store is one tenant of the platform. Gateway credentials are stored
// encrypted at rest; an empty merchant id means the tenant uses the
// process-wide fallback configuration.
type Store struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name              string    `json:"name" gorm:"not null"`
	Slug              string    `json:"slug" gorm:"uniqueIndex;not null"`
	Active            bool      `json:"active" gorm:"default:true"`
	KashierMerchantID string    `json:"-"`
	KashierAPIKey     string    `json:"-"` // encrypted
	KashierAPISecret  string    `json:"-"` // encrypted
	KashierMode       string    `json:"-" gorm:"default:test"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Store) TableName() string {
	return "stores"
}
