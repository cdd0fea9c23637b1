package order

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the money state of an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Status represents the fulfillment stage of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Order is owned by the order subsystem. The payment core reads total,
// currency and payment method as the source of truth to validate webhook
// claims against, and holds a narrow write capability limited to
// payment_status and status on confirmed payment events.
type Order struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StoreID       uuid.UUID     `json:"store_id" gorm:"type:uuid;not null;index"`
	OrderNumber   string        `json:"order_number" gorm:"uniqueIndex;not null"`
	CustomerEmail string        `json:"customer_email"`
	CustomerName  string        `json:"customer_name"`
	Total         float64       `json:"total" gorm:"type:numeric(12,2);not null"`
	Currency      string        `json:"currency" gorm:"not null;default:EGP"`
	PaymentMethod string        `json:"payment_method" gorm:"not null"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"not null;default:pending;index"`
	Status        Status        `json:"status" gorm:"not null;default:pending"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPaid returns true if the order has been paid.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}
