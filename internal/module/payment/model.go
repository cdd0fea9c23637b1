package payment

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the status of a payment transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Method represents a supported payment method.
type Method string

const (
	MethodKashier      Method = "kashier"
	MethodCOD          Method = "cod"
	MethodBankTransfer Method = "bank_transfer"
)

// Supported reports whether the method is one this core can create
// transactions for.
func (m Method) Supported() bool {
	switch m {
	case MethodKashier, MethodCOD, MethodBankTransfer:
		return true
	}
	return false
}

// Transaction represents one attempt to collect payment for an order.
// Amount and currency are immutable after creation; only status, terminal
// timestamps and the gateway response change, and only through the state
// machine. Rows are never deleted.
type Transaction struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID         uuid.UUID  `json:"order_id" gorm:"type:uuid;not null;index"`
	TransactionID   string     `json:"transaction_id" gorm:"uniqueIndex;not null"`
	Amount          float64    `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency        string     `json:"currency" gorm:"not null"`
	Status          Status     `json:"status" gorm:"not null;default:pending;index"`
	Method          Method     `json:"method" gorm:"not null"`
	GatewayResponse *string    `json:"-" gorm:"type:jsonb"` // NULL until a verified webhook arrives
	FailureReason   *string    `json:"failure_reason,omitempty"`
	InitiatedAt     time.Time  `json:"initiated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (Transaction) TableName() string {
	return "payment_transactions"
}

// IsCompleted returns true if the transaction completed successfully.
func (t *Transaction) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Refund records a refund applied against a completed transaction.
type Refund struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID uuid.UUID `json:"transaction_id" gorm:"type:uuid;not null;index"`
	Amount        float64   `json:"amount" gorm:"type:numeric(12,2);not null"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Refund) TableName() string {
	return "payment_refunds"
}

// WebhookLog stores a verified raw webhook delivery for traceability.
// Writes are best-effort and never block webhook processing.
type WebhookLog struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Provider   string    `json:"provider" gorm:"not null;index"`
	EventType  string    `json:"event_type" gorm:"index"`
	OrderID    string    `json:"order_id" gorm:"index"`
	RawBody    string    `json:"raw_body" gorm:"type:jsonb"`
	Signature  string    `json:"signature"`
	ReceivedAt time.Time `json:"received_at"`
}

// TableName returns the database table name.
func (WebhookLog) TableName() string {
	return "payment_webhook_logs"
}
