package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrSecurityEventNotFound is returned when resolving an unknown event.
var ErrSecurityEventNotFound = errors.New("security event not found")

// Repository defines the interface for audit data access.
type Repository interface {
	CreateAuditLog(ctx context.Context, entry *AuditLog) error
	CreateSecurityEvent(ctx context.Context, event *SecurityEvent) error
	ListOpenSecurityEvents(ctx context.Context, limit int) ([]*SecurityEvent, error)
	ResolveSecurityEvent(ctx context.Context, id uuid.UUID, resolvedBy string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new audit repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateAuditLog(ctx context.Context, entry *AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func (r *repository) CreateSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create security event: %w", err)
	}
	return nil
}

func (r *repository) ListOpenSecurityEvents(ctx context.Context, limit int) ([]*SecurityEvent, error) {
	var events []*SecurityEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", SecurityEventOpen).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list open security events: %w", err)
	}
	return events, nil
}

func (r *repository) ResolveSecurityEvent(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	res := r.db.WithContext(ctx).
		Model(&SecurityEvent{}).
		Where("id = ? AND status = ?", id, SecurityEventOpen).
		Updates(map[string]interface{}{
			"status":      SecurityEventResolved,
			"resolved_by": resolvedBy,
			"resolved_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("resolve security event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSecurityEventNotFound
	}
	return nil
}
