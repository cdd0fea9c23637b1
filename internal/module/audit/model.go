package audit

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies an audit entry. Warning and critical entries are
// escalated into the security-event stream.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ActorType identifies what kind of actor performed an action.
type ActorType string

const (
	ActorSystem   ActorType = "system"
	ActorAdmin    ActorType = "admin"
	ActorCustomer ActorType = "customer"
	ActorAPI      ActorType = "api"
)

// AuditLog is an immutable record of one orchestration step. Rows are
// append-only: never updated or deleted.
type AuditLog struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Action       string    `json:"action" gorm:"not null;index"`
	ActorID      string    `json:"actor_id" gorm:"index"`
	ActorType    ActorType `json:"actor_type" gorm:"not null;default:system"`
	ResourceType string    `json:"resource_type" gorm:"index"`
	ResourceID   string    `json:"resource_id" gorm:"index"`
	Details      string    `json:"details,omitempty" gorm:"type:jsonb"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Severity     Severity  `json:"severity" gorm:"not null;default:info"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// SecurityEventStatus represents the review state of a security event.
type SecurityEventStatus string

const (
	SecurityEventOpen     SecurityEventStatus = "open"
	SecurityEventResolved SecurityEventStatus = "resolved"
)

// SecurityEvent is a flagged occurrence requiring human review, created
// whenever a webhook fails verification, references an unknown order, or a
// payload mismatch is detected.
type SecurityEvent struct {
	ID          uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventType   string              `json:"event_type" gorm:"not null;index"`
	Severity    Severity            `json:"severity" gorm:"not null"`
	Description string              `json:"description"`
	Details     string              `json:"details,omitempty" gorm:"type:jsonb"`
	IPAddress   string              `json:"ip_address,omitempty"`
	UserAgent   string              `json:"user_agent,omitempty"`
	Status      SecurityEventStatus `json:"status" gorm:"not null;default:open;index"`
	ResolvedBy  *string             `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// TableName returns the database table name.
func (SecurityEvent) TableName() string {
	return "security_events"
}
