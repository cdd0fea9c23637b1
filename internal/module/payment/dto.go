package payment

import "github.com/google/uuid"

// CreatePaymentRequest is the caller's payment-creation intent.
type CreatePaymentRequest struct {
	OrderID       uuid.UUID `json:"order_id" binding:"required"`
	Amount        float64   `json:"amount" binding:"required"`
	Currency      string    `json:"currency" binding:"required"`
	Method        Method    `json:"method" binding:"required"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
}

// CreatePaymentResult is returned to the checkout flow. Failures are
// reported in-band so a single payment-method failure degrades gracefully
// instead of crashing the surrounding flow.
type CreatePaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WebhookPayload is the canonical, untrusted inbound webhook body.
type WebhookPayload struct {
	EventType string      `json:"event_type"`
	Data      WebhookData `json:"data"`
}

// WebhookData carries the gateway's claims about a payment event.
type WebhookData struct {
	TransactionID string   `json:"transaction_id"`
	OrderID       string   `json:"order_id"`
	Amount        *float64 `json:"amount,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Status        string   `json:"status,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`
	RefundAmount  *float64 `json:"refund_amount,omitempty"`
	CardBrand     string   `json:"card_brand,omitempty"`
	CardLast4     string   `json:"card_last4,omitempty"`
}

// EventKind is the closed set of webhook event kinds this core understands.
// Unknown gateway events map to EventUnknown and are acknowledged but
// ignored, so new event types are a conscious extension.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCompleted
	EventFailed
	EventRefunded
)

// ParseEventKind maps a gateway event type string onto the closed enum.
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case "payment.completed", "payment.success":
		return EventCompleted
	case "payment.failed":
		return EventFailed
	case "payment.refunded":
		return EventRefunded
	default:
		return EventUnknown
	}
}

// WebhookOutcome is the result of processing one webhook delivery.
// StatusCode follows the gateway retry contract: 2xx acknowledges, 4xx
// marks payloads that will never become valid, 5xx requests a retry.
type WebhookOutcome struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}
