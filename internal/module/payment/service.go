package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dukkan/server/internal/module/audit"
	"github.com/dukkan/server/internal/module/crypto"
	"github.com/dukkan/server/internal/module/kashier"
	"github.com/dukkan/server/internal/module/order"
	"github.com/dukkan/server/internal/shared/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// amountTolerance absorbs floating-point rounding between the gateway's
	// claimed amount and the total quoted to the customer.
	amountTolerance = 0.01

	// webhookActor is the audit identity for gateway-driven transitions.
	webhookActor = "kashier_webhook"
)

// AdapterResolver returns the gateway adapter for a tenant.
type AdapterResolver interface {
	AdapterFor(ctx context.Context, storeID uuid.UUID) *kashier.Adapter
}

// Service orchestrates the payment transaction lifecycle: creation across
// the supported methods, verified webhook processing, and the idempotent
// state machine over money-bearing records.
type Service struct {
	repo      Repository
	orders    order.Repository
	adapter   *kashier.Adapter
	resolver  AdapterResolver
	sm        *StateMachine
	audit     *audit.Logger
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tolerance time.Duration
}

// NewService creates a new payment service. The adapter is the process-wide
// gateway configuration, used for webhook verification; resolver supplies
// per-tenant configurations for redirect building and may be nil.
func NewService(
	repo Repository,
	orders order.Repository,
	adapter *kashier.Adapter,
	resolver AdapterResolver,
	auditLogger *audit.Logger,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		orders:    orders,
		adapter:   adapter,
		resolver:  resolver,
		sm:        NewStateMachine(),
		audit:     auditLogger,
		metrics:   m,
		logger:    logger,
		tolerance: kashier.DefaultTolerance,
	}
}

// CreatePayment creates a payment transaction for an order. Validation
// failures and gateway errors are reported in the result, not raised, so
// the surrounding checkout flow degrades gracefully.
func (s *Service) CreatePayment(ctx context.Context, req *CreatePaymentRequest, network *audit.NetworkContext) *CreatePaymentResult {
	if req.OrderID == uuid.Nil {
		return &CreatePaymentResult{Error: "order id is required"}
	}
	if req.Amount <= 0 {
		return &CreatePaymentResult{Error: "amount must be positive"}
	}
	if !req.Method.Supported() {
		return &CreatePaymentResult{Error: fmt.Sprintf("unsupported payment method: %s", req.Method)}
	}

	if req.Method == MethodKashier {
		return s.createGatewayPayment(ctx, req, network)
	}
	return s.createOfflinePayment(ctx, req, network)
}

// createGatewayPayment builds the signed hosted-checkout redirect and
// persists a pending transaction. A persistence failure is logged but does
// not block returning the redirect URL: the payment experience must not be
// held hostage by a logging outage.
func (s *Service) createGatewayPayment(ctx context.Context, req *CreatePaymentRequest, network *audit.NetworkContext) *CreatePaymentResult {
	adapter := s.adapter
	if s.resolver != nil {
		if ord, err := s.orders.GetByID(ctx, req.OrderID); err == nil {
			adapter = s.resolver.AdapterFor(ctx, ord.StoreID)
		}
	}

	redirect, err := adapter.BuildPaymentRedirect(
		req.OrderID.String(),
		req.Amount,
		req.Currency,
		req.CustomerEmail,
		req.CustomerName,
	)
	if err != nil {
		s.logger.Error("failed to build payment redirect",
			zap.String("order_id", req.OrderID.String()),
			zap.Error(err),
		)
		s.metrics.RecordPaymentCreated(string(MethodKashier), "error")
		return &CreatePaymentResult{Error: "failed to initialize gateway payment"}
	}

	txn := &Transaction{
		ID:            uuid.New(),
		OrderID:       req.OrderID,
		TransactionID: redirect.TransactionID,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		Status:        StatusPending,
		Method:        MethodKashier,
		InitiatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		s.logger.Error("failed to persist pending transaction",
			zap.String("transaction_id", txn.TransactionID),
			zap.Error(err),
		)
	}

	s.audit.PaymentCreated(ctx, txn.TransactionID, req.OrderID.String(), string(MethodKashier), req.Amount, txn.Currency, network)
	s.metrics.RecordPaymentCreated(string(MethodKashier), "success")

	return &CreatePaymentResult{
		Success:       true,
		TransactionID: redirect.TransactionID,
		RedirectURL:   redirect.RedirectURL,
	}
}

// createOfflinePayment persists a pending transaction for cash-on-delivery
// or bank transfer. These methods are confirmed later by operational means;
// there is no external redirect.
func (s *Service) createOfflinePayment(ctx context.Context, req *CreatePaymentRequest, network *audit.NetworkContext) *CreatePaymentResult {
	prefix := "cod"
	if req.Method == MethodBankTransfer {
		prefix = "bank"
	}
	token, err := crypto.GenerateSecureToken(8)
	if err != nil {
		s.logger.Error("failed to generate transaction id", zap.Error(err))
		s.metrics.RecordPaymentCreated(string(req.Method), "error")
		return &CreatePaymentResult{Error: "failed to create payment"}
	}
	transactionID := fmt.Sprintf("%s_%s", prefix, token)

	txn := &Transaction{
		ID:            uuid.New(),
		OrderID:       req.OrderID,
		TransactionID: transactionID,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		Status:        StatusPending,
		Method:        req.Method,
		InitiatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		// Same contract as the gateway path: the checkout flow proceeds.
		s.logger.Error("failed to persist pending transaction",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
	}

	s.audit.PaymentCreated(ctx, transactionID, req.OrderID.String(), string(req.Method), req.Amount, txn.Currency, network)
	s.metrics.RecordPaymentCreated(string(req.Method), "success")

	return &CreatePaymentResult{
		Success:       true,
		TransactionID: transactionID,
	}
}

// HandleWebhook validates and applies one gateway webhook delivery.
// Deliveries may arrive concurrently, out of order and duplicated; every
// rejection is recorded as a security event so a rising failure rate is
// externally observable.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature, timestamp string, network *audit.NetworkContext) *WebhookOutcome {
	if signature == "" || timestamp == "" {
		return s.reject(ctx, http.StatusBadRequest, "webhook_missing_headers",
			"webhook received without signature or timestamp header",
			audit.SeverityWarning, nil, network)
	}

	if !s.adapter.VerifyWebhookSignature(rawBody, signature, timestamp, s.tolerance) {
		s.metrics.RecordWebhook("signature_invalid")
		s.audit.SecurityEvent(ctx, "webhook_signature_invalid", audit.SeverityWarning,
			"webhook signature verification failed",
			map[string]interface{}{"timestamp": timestamp}, network)
		return &WebhookOutcome{StatusCode: http.StatusUnauthorized, Status: "rejected", Message: "invalid signature"}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return s.reject(ctx, http.StatusBadRequest, "webhook_malformed_payload",
			"webhook body is not valid JSON",
			audit.SeverityWarning, nil, network)
	}

	// Best-effort raw capture for traceability; never blocks processing.
	if err := s.repo.SaveWebhookLog(ctx, &WebhookLog{
		ID:         uuid.New(),
		Provider:   "kashier",
		EventType:  payload.EventType,
		OrderID:    payload.Data.OrderID,
		RawBody:    string(rawBody),
		Signature:  signature,
		ReceivedAt: time.Now(),
	}); err != nil {
		s.logger.Warn("failed to persist raw webhook", zap.Error(err))
	}

	if payload.Data.OrderID == "" {
		return s.reject(ctx, http.StatusBadRequest, "webhook_missing_order_id",
			"webhook payload carries no order id",
			audit.SeverityWarning, map[string]interface{}{"event_type": payload.EventType}, network)
	}

	orderID, err := uuid.Parse(payload.Data.OrderID)
	if err != nil {
		return s.reject(ctx, http.StatusBadRequest, "webhook_malformed_order_id",
			"webhook order id is not a valid identifier",
			audit.SeverityWarning, map[string]interface{}{"order_id": payload.Data.OrderID}, network)
	}

	ord, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if err == order.ErrOrderNotFound {
			return s.reject(ctx, http.StatusNotFound, "webhook_unknown_order",
				"webhook references an order this platform does not know",
				audit.SeverityWarning, map[string]interface{}{"order_id": payload.Data.OrderID}, network)
		}
		s.logger.Error("failed to load order for webhook", zap.Error(err))
		s.metrics.RecordWebhook("error")
		return &WebhookOutcome{StatusCode: http.StatusInternalServerError, Status: "error", Message: "order lookup failed"}
	}

	// A webhook replayed against an order paying by another method must
	// never move money state.
	if ord.PaymentMethod != string(MethodKashier) {
		return s.reject(ctx, http.StatusBadRequest, "webhook_method_mismatch",
			"webhook targets an order not paying via the gateway",
			audit.SeverityWarning, map[string]interface{}{
				"order_id":       payload.Data.OrderID,
				"order_method":   ord.PaymentMethod,
				"webhook_method": string(MethodKashier),
			}, network)
	}

	// The single most important invariant: a webhook can never move money
	// state unless its claimed amount and currency match the quote.
	if payload.Data.Amount != nil && math.Abs(*payload.Data.Amount-ord.Total) >= amountTolerance {
		return s.reject(ctx, http.StatusBadRequest, "webhook_amount_mismatch",
			"webhook claimed amount disagrees with the order total",
			audit.SeverityCritical, map[string]interface{}{
				"order_id":       payload.Data.OrderID,
				"claimed_amount": *payload.Data.Amount,
				"order_total":    ord.Total,
			}, network)
	}
	if payload.Data.Currency != "" && !strings.EqualFold(payload.Data.Currency, ord.Currency) {
		return s.reject(ctx, http.StatusBadRequest, "webhook_currency_mismatch",
			"webhook claimed currency disagrees with the order currency",
			audit.SeverityCritical, map[string]interface{}{
				"order_id":         payload.Data.OrderID,
				"claimed_currency": payload.Data.Currency,
				"order_currency":   ord.Currency,
			}, network)
	}

	txn, err := s.repo.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		if err == ErrTransactionNotFound {
			return s.reject(ctx, http.StatusNotFound, "webhook_unknown_transaction",
				"webhook references an order with no transaction this platform created",
				audit.SeverityWarning, map[string]interface{}{"order_id": payload.Data.OrderID}, network)
		}
		s.logger.Error("failed to load transaction for webhook", zap.Error(err))
		s.metrics.RecordWebhook("error")
		return &WebhookOutcome{StatusCode: http.StatusInternalServerError, Status: "error", Message: "transaction lookup failed"}
	}

	switch ParseEventKind(payload.EventType) {
	case EventCompleted:
		return s.applyCompleted(ctx, &payload, rawBody, ord, txn, network)
	case EventFailed:
		return s.applyFailed(ctx, &payload, rawBody, ord, txn)
	case EventRefunded:
		return s.applyRefunded(ctx, &payload, txn)
	default:
		// Forward-compatible: gateways retry non-2xx, so unknown events are
		// acknowledged and ignored rather than failed.
		s.logger.Debug("ignoring unknown webhook event type",
			zap.String("event_type", payload.EventType),
		)
		s.metrics.RecordWebhook("ignored")
		return &WebhookOutcome{StatusCode: http.StatusOK, Status: "ignored"}
	}
}

// applyCompleted performs the idempotent paid transition. Duplicate
// deliveries acknowledge without double-applying; persistence failure is
// fatal to this delivery so the gateway retries.
func (s *Service) applyCompleted(ctx context.Context, payload *WebhookPayload, rawBody []byte, ord *order.Order, txn *Transaction, network *audit.NetworkContext) *WebhookOutcome {
	if payload.Data.Amount == nil {
		return s.reject(ctx, http.StatusBadRequest, "webhook_amount_missing",
			"completed event carries no claimed amount",
			audit.SeverityWarning, map[string]interface{}{"order_id": payload.Data.OrderID}, network)
	}

	if ord.IsPaid() {
		s.logger.Info("order already paid, webhook treated as duplicate",
			zap.String("order_id", ord.ID.String()),
		)
		s.metrics.RecordWebhook("duplicate")
		return &WebhookOutcome{StatusCode: http.StatusOK, Status: "already_processed"}
	}

	applied, err := s.repo.CompleteWithOrder(ctx, txn.TransactionID, ord.ID, string(rawBody))
	if err != nil {
		s.logger.Error("failed to apply completed transition",
			zap.String("transaction_id", txn.TransactionID),
			zap.Error(err),
		)
		s.metrics.RecordWebhook("error")
		return &WebhookOutcome{StatusCode: http.StatusInternalServerError, Status: "error", Message: "persistence failure"}
	}
	if !applied {
		// A concurrent delivery won the conditional update.
		s.metrics.RecordWebhook("duplicate")
		return &WebhookOutcome{StatusCode: http.StatusOK, Status: "already_processed"}
	}

	s.audit.PaymentStatusChanged(ctx, txn.TransactionID, string(txn.Status), string(StatusCompleted), webhookActor, map[string]interface{}{
		"order_id": ord.ID.String(),
		"amount":   *payload.Data.Amount,
		"currency": ord.Currency,
	})
	s.metrics.RecordWebhook("processed")
	return &WebhookOutcome{StatusCode: http.StatusOK, Status: "processed"}
}

// applyFailed marks the transaction and order failed. Repeated failure
// notifications are harmless.
func (s *Service) applyFailed(ctx context.Context, payload *WebhookPayload, rawBody []byte, ord *order.Order, txn *Transaction) *WebhookOutcome {
	applied, err := s.repo.FailWithOrder(ctx, txn.TransactionID, ord.ID, payload.Data.FailureReason, string(rawBody))
	if err != nil {
		s.logger.Error("failed to apply failed transition",
			zap.String("transaction_id", txn.TransactionID),
			zap.Error(err),
		)
		s.metrics.RecordWebhook("error")
		return &WebhookOutcome{StatusCode: http.StatusInternalServerError, Status: "error", Message: "persistence failure"}
	}
	if applied {
		s.audit.PaymentStatusChanged(ctx, txn.TransactionID, string(txn.Status), string(StatusFailed), webhookActor, map[string]interface{}{
			"order_id":       ord.ID.String(),
			"failure_reason": payload.Data.FailureReason,
		})
	}
	s.metrics.RecordWebhook("processed")
	return &WebhookOutcome{StatusCode: http.StatusOK, Status: "processed"}
}

// applyRefunded records a refund entry and transitions the transaction.
// Order fulfillment state is deliberately untouched; reversing fulfillment
// is a separate operational decision.
func (s *Service) applyRefunded(ctx context.Context, payload *WebhookPayload, txn *Transaction) *WebhookOutcome {
	amount := txn.Amount
	if payload.Data.RefundAmount != nil {
		amount = *payload.Data.RefundAmount
	}
	refund := &Refund{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		Amount:        amount,
		Reason:        "gateway refund notification",
	}

	applied, err := s.repo.MarkRefunded(ctx, txn.TransactionID, refund)
	if err != nil {
		s.logger.Error("failed to apply refunded transition",
			zap.String("transaction_id", txn.TransactionID),
			zap.Error(err),
		)
		s.metrics.RecordWebhook("error")
		return &WebhookOutcome{StatusCode: http.StatusInternalServerError, Status: "error", Message: "persistence failure"}
	}
	if applied {
		s.audit.RefundRequested(ctx, txn.TransactionID, amount, refund.Reason, webhookActor)
		s.audit.PaymentStatusChanged(ctx, txn.TransactionID, string(txn.Status), string(StatusRefunded), webhookActor, map[string]interface{}{
			"refund_amount": amount,
		})
	}
	s.metrics.RecordWebhook("processed")
	return &WebhookOutcome{StatusCode: http.StatusOK, Status: "processed"}
}

// UpdatePaymentStatus is the directly-invoked counterpart to the webhook
// path, used for manual and administrative overrides. It applies the same
// terminal-timestamp rules and always logs the event.
func (s *Service) UpdatePaymentStatus(ctx context.Context, transactionID string, newStatus Status, details map[string]interface{}, actor string) error {
	txn, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}
	if err := s.sm.Validate(txn.Status, newStatus); err != nil {
		return err
	}

	var applied bool
	switch newStatus {
	case StatusCompleted:
		applied, err = s.repo.CompleteWithOrder(ctx, txn.TransactionID, txn.OrderID, "")
	case StatusFailed:
		reason, _ := details["reason"].(string)
		applied, err = s.repo.FailWithOrder(ctx, txn.TransactionID, txn.OrderID, reason, "")
	case StatusRefunded:
		reason, _ := details["reason"].(string)
		refund := &Refund{
			ID:            uuid.New(),
			TransactionID: txn.ID,
			Amount:        txn.Amount,
			Reason:        reason,
		}
		applied, err = s.repo.MarkRefunded(ctx, txn.TransactionID, refund)
	default:
		applied, err = s.repo.UpdateStatus(ctx, txn.TransactionID, []Status{txn.Status}, newStatus, nil)
	}
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: transaction no longer in %s", ErrInvalidTransition, txn.Status)
	}

	s.audit.PaymentStatusChanged(ctx, txn.TransactionID, string(txn.Status), string(newStatus), actor, details)
	return nil
}

// GetTransaction returns a transaction by its external id.
func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	return s.repo.GetByTransactionID(ctx, transactionID)
}

// reject records a security event for a webhook that will never become
// valid on retry and returns the 4xx outcome.
func (s *Service) reject(ctx context.Context, code int, eventType, description string, severity audit.Severity, details map[string]interface{}, network *audit.NetworkContext) *WebhookOutcome {
	s.metrics.RecordWebhook("rejected")
	s.audit.SecurityEvent(ctx, eventType, severity, description, details, network)
	return &WebhookOutcome{StatusCode: code, Status: "rejected", Message: description}
}
