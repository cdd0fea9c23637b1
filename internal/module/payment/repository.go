package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukkan/server/internal/module/order"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for payment data access. The combined
// transaction+order mutations run as a single database transaction with
// conditional updates, so two concurrent deliveries of the same webhook
// cannot both believe they applied the state change.
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*Transaction, error)

	// CompleteWithOrder atomically marks the transaction completed and the
	// order paid/processing. Returns false when a concurrent delivery
	// already applied the transition.
	CompleteWithOrder(ctx context.Context, transactionID string, orderID uuid.UUID, gatewayResponse string) (bool, error)

	// FailWithOrder marks the transaction failed and the order's payment
	// failed. A paid order is never downgraded.
	FailWithOrder(ctx context.Context, transactionID string, orderID uuid.UUID, reason, gatewayResponse string) (bool, error)

	// MarkRefunded transitions a completed transaction to refunded and
	// records the refund entry in the same database transaction.
	MarkRefunded(ctx context.Context, transactionID string, refund *Refund) (bool, error)

	// UpdateStatus performs a guarded status transition with extra column
	// updates. Returns false when the transaction was not in any of the
	// expected source states.
	UpdateStatus(ctx context.Context, transactionID string, from []Status, to Status, updates map[string]interface{}) (bool, error)

	SaveWebhookLog(ctx context.Context, entry *WebhookLog) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// jsonbDoc maps an empty document to NULL. Postgres rejects an empty string
// cast to jsonb, so the column must never see "".
func jsonbDoc(doc string) interface{} {
	if doc == "" {
		return nil
	}
	return doc
}

func (r *repository) Create(ctx context.Context, txn *Transaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *repository) GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error) {
	var txn Transaction
	err := r.db.WithContext(ctx).First(&txn, "transaction_id = ?", transactionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &txn, nil
}

func (r *repository) GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*Transaction, error) {
	var txn Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get latest transaction: %w", err)
	}
	return &txn, nil
}

func (r *repository) CompleteWithOrder(ctx context.Context, transactionID string, orderID uuid.UUID, gatewayResponse string) (bool, error) {
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&Transaction{}).
			Where("transaction_id = ? AND status IN ?", transactionID, []Status{StatusPending, StatusProcessing}).
			Updates(map[string]interface{}{
				"status":           StatusCompleted,
				"completed_at":     now,
				"gateway_response": jsonbDoc(gatewayResponse),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent delivery won the conditional update.
			return nil
		}
		applied = true

		res = tx.Model(&order.Order{}).
			Where("id = ? AND payment_status <> ?", orderID, order.PaymentStatusPaid).
			Updates(map[string]interface{}{
				"payment_status": order.PaymentStatusPaid,
				"status":         order.StatusProcessing,
			})
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("complete transaction: %w", err)
	}
	return applied, nil
}

func (r *repository) FailWithOrder(ctx context.Context, transactionID string, orderID uuid.UUID, reason, gatewayResponse string) (bool, error) {
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&Transaction{}).
			Where("transaction_id = ? AND status IN ?", transactionID, []Status{StatusPending, StatusProcessing}).
			Updates(map[string]interface{}{
				"status":           StatusFailed,
				"failed_at":        now,
				"failure_reason":   reason,
				"gateway_response": jsonbDoc(gatewayResponse),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		res = tx.Model(&order.Order{}).
			Where("id = ? AND payment_status = ?", orderID, order.PaymentStatusPending).
			Update("payment_status", order.PaymentStatusFailed)
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("fail transaction: %w", err)
	}
	return applied, nil
}

func (r *repository) MarkRefunded(ctx context.Context, transactionID string, refund *Refund) (bool, error) {
	var applied bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Transaction{}).
			Where("transaction_id = ? AND status = ?", transactionID, StatusCompleted).
			Update("status", StatusRefunded)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Create(refund).Error
	})
	if err != nil {
		return false, fmt.Errorf("refund transaction: %w", err)
	}
	return applied, nil
}

func (r *repository) UpdateStatus(ctx context.Context, transactionID string, from []Status, to Status, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("transaction_id = ? AND status IN ?", transactionID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update transaction status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SaveWebhookLog(ctx context.Context, entry *WebhookLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("save webhook log: %w", err)
	}
	return nil
}
