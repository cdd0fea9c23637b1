package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukkan/server/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// NetworkContext carries request-level network metadata into audit entries.
type NetworkContext struct {
	IPAddress string
	UserAgent string
}

// Entry is one audit record to be written.
type Entry struct {
	Action       string
	ActorID      string
	ActorType    ActorType
	ResourceType string
	ResourceID   string
	Details      map[string]interface{}
	Network      *NetworkContext
	Severity     Severity
}

// Logger records actions for compliance. Writes are best-effort: a failure
// is swallowed, logged, and counted, never propagated into business logic.
// Entries with warning or critical severity are additionally escalated into
// the security-event stream.
type Logger struct {
	repo    Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewLogger creates a new audit logger. The circuit breaker lets a database
// outage degrade to fast-failing counter increments instead of a per-request
// write timeout.
func NewLogger(repo Repository, m *metrics.Metrics, logger *zap.Logger) *Logger {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "audit-writes",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Logger{
		repo:    repo,
		logger:  logger,
		metrics: m,
		breaker: breaker,
	}
}

// Log writes an entry to the audit stream and, for warning or critical
// severity, to the security-event stream. Never returns an error.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.ActorType == "" {
		e.ActorType = ActorSystem
	}

	record := &AuditLog{
		ID:           uuid.New(),
		Action:       e.Action,
		ActorID:      e.ActorID,
		ActorType:    e.ActorType,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      marshalDetails(e.Details),
		Severity:     e.Severity,
	}
	if e.Network != nil {
		record.IPAddress = e.Network.IPAddress
		record.UserAgent = e.Network.UserAgent
	}

	l.write(ctx, "audit log", func(ctx context.Context) error {
		return l.repo.CreateAuditLog(ctx, record)
	})

	if e.Severity == SeverityWarning || e.Severity == SeverityCritical {
		l.escalate(ctx, e, record.Details)
	}
}

// SecurityEvent records a flagged occurrence directly into both streams.
func (l *Logger) SecurityEvent(ctx context.Context, eventType string, severity Severity, description string, details map[string]interface{}, network *NetworkContext) {
	if severity == "" {
		severity = SeverityWarning
	}
	l.Log(ctx, Entry{
		Action:       eventType,
		ActorType:    ActorSystem,
		ResourceType: "security",
		Details: mergeDetails(details, map[string]interface{}{
			"description": description,
		}),
		Network:  network,
		Severity: severity,
	})
}

// PaymentCreated records creation of a payment transaction.
func (l *Logger) PaymentCreated(ctx context.Context, transactionID, orderID, method string, amount float64, currency string, network *NetworkContext) {
	l.Log(ctx, Entry{
		Action:       "payment_initiated",
		ActorType:    ActorCustomer,
		ResourceType: "payment_transaction",
		ResourceID:   transactionID,
		Details: map[string]interface{}{
			"order_id": orderID,
			"method":   method,
			"amount":   amount,
			"currency": currency,
		},
		Network:  network,
		Severity: SeverityInfo,
	})
}

// PaymentStatusChanged records a transaction state transition.
func (l *Logger) PaymentStatusChanged(ctx context.Context, transactionID, oldStatus, newStatus, actor string, details map[string]interface{}) {
	l.Log(ctx, Entry{
		Action:       "payment_status_changed",
		ActorID:      actor,
		ActorType:    ActorSystem,
		ResourceType: "payment_transaction",
		ResourceID:   transactionID,
		Details: mergeDetails(details, map[string]interface{}{
			"old_status": oldStatus,
			"new_status": newStatus,
		}),
		Severity: SeverityInfo,
	})
}

// RefundRequested records a refund against a transaction.
func (l *Logger) RefundRequested(ctx context.Context, transactionID string, amount float64, reason, actor string) {
	l.Log(ctx, Entry{
		Action:       "refund_requested",
		ActorID:      actor,
		ActorType:    ActorSystem,
		ResourceType: "payment_transaction",
		ResourceID:   transactionID,
		Details: map[string]interface{}{
			"refund_amount": amount,
			"reason":        reason,
		},
		Severity: SeverityInfo,
	})
}

// AdminAction records an operator-initiated change.
func (l *Logger) AdminAction(ctx context.Context, adminID, action, resourceType, resourceID string, details map[string]interface{}, network *NetworkContext) {
	l.Log(ctx, Entry{
		Action:       action,
		ActorID:      adminID,
		ActorType:    ActorAdmin,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Network:      network,
		Severity:     SeverityInfo,
	})
}

// DataAccess records a read of sensitive data.
func (l *Logger) DataAccess(ctx context.Context, actorID string, actorType ActorType, resourceType, resourceID string, network *NetworkContext) {
	l.Log(ctx, Entry{
		Action:       "data_access",
		ActorID:      actorID,
		ActorType:    actorType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Network:      network,
		Severity:     SeverityInfo,
	})
}

// Resolve marks a security event as reviewed by an operator.
func (l *Logger) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	return l.repo.ResolveSecurityEvent(ctx, id, resolvedBy)
}

// escalate writes a warning/critical entry into the security-event stream.
func (l *Logger) escalate(ctx context.Context, e Entry, details string) {
	description, _ := e.Details["description"].(string)
	event := &SecurityEvent{
		ID:          uuid.New(),
		EventType:   e.Action,
		Severity:    e.Severity,
		Description: description,
		Details:     details,
		Status:      SecurityEventOpen,
	}
	if e.Network != nil {
		event.IPAddress = e.Network.IPAddress
		event.UserAgent = e.Network.UserAgent
	}

	l.write(ctx, "security event", func(ctx context.Context) error {
		return l.repo.CreateSecurityEvent(ctx, event)
	})
	l.metrics.RecordSecurityEvent(e.Action, string(e.Severity))
}

// write performs a best-effort persistence call through the circuit breaker.
func (l *Logger) write(ctx context.Context, kind string, fn func(context.Context) error) {
	_, err := l.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		l.metrics.RecordAuditWriteFailure()
		l.logger.Error("audit write failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

// marshalDetails always yields a valid JSON document. The details columns
// are jsonb, and Postgres rejects an empty string cast to jsonb.
func marshalDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return "{}"
	}
	data, err := json.Marshal(details)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func mergeDetails(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
