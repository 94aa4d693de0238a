package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
)

type TransactionFilter struct {
	CustomerID *uuid.UUID // nil lists every customer's transactions
	Status     dbm.TransactionStatus
	Page       int
	PageSize   int
}

// SweepCursor is the (created_at, id) position of the last row a sweep
// handled; the next batch starts strictly after it.
type SweepCursor struct {
	CreatedAt int64
	ID        uuid.UUID
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *dbm.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*dbm.Transaction, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*dbm.Transaction, error)
	FindByGatewayOrderCode(ctx context.Context, orderCode int64) (*dbm.Transaction, error)
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*dbm.Transaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]dbm.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]dbm.Transaction, int64, error)
	FindStalePending(ctx context.Context, createdBefore int64, after *SweepCursor, limit int) ([]dbm.Transaction, error)

	// FindUncompensated returns FAILED/CANCELLED transactions whose order is
	// still neither cancelled nor paid and has no open transaction, i.e. ones
	// whose compensation never completed.
	FindUncompensated(ctx context.Context, after *SweepCursor, limit int) ([]dbm.Transaction, error)

	// Transition writes to and fields only while the row is still open
	// (PENDING/PROCESSING, or PENDING alone when to is PROCESSING). It reports
	// whether this call performed the transition.
	Transition(ctx context.Context, id uuid.UUID, to dbm.TransactionStatus, fields map[string]interface{}) (bool, error)

	// UpdateOpen writes non-status fields while the row is still open.
	UpdateOpen(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error)
	RecordWebhookReceipt(ctx context.Context, id uuid.UUID, receivedAt int64, signature string) error
	RecordGatewayFailure(ctx context.Context, id uuid.UUID, message string) error

	// ReopenForRetry hands a PENDING transaction whose link creation failed
	// to exactly one retrying caller, under a new order code.
	ReopenForRetry(ctx context.Context, id uuid.UUID, orderCode int64, createdAt int64) (bool, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, txn *dbm.Transaction) error {
	return infra.Conn(ctx, r.db).Create(txn).Error
}

func (r *transactionRepository) first(ctx context.Context, query string, args ...interface{}) (*dbm.Transaction, error) {
	var txn dbm.Transaction
	err := infra.Conn(ctx, r.db).Where(query, args...).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*dbm.Transaction, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *transactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*dbm.Transaction, error) {
	return r.first(ctx, "transaction_id = ?", transactionID)
}

func (r *transactionRepository) FindByGatewayOrderCode(ctx context.Context, orderCode int64) (*dbm.Transaction, error) {
	return r.first(ctx, "gateway_order_code = ?", orderCode)
}

func (r *transactionRepository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*dbm.Transaction, error) {
	return r.first(ctx, "order_id = ? AND status IN ?", orderID, dbm.OpenTransactionStatuses)
}

func (r *transactionRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]dbm.Transaction, error) {
	var txns []dbm.Transaction
	err := infra.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) List(ctx context.Context, filter TransactionFilter) ([]dbm.Transaction, int64, error) {
	query := infra.Conn(ctx, r.db).Model(&dbm.Transaction{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []dbm.Transaction
	err := query.Scopes(func(db *gorm.DB) *gorm.DB {
		offset := (filter.Page - 1) * filter.PageSize
		return db.Offset(offset).Limit(filter.PageSize)
	}).Order("created_at DESC").Find(&txns).Error
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *transactionRepository) FindStalePending(ctx context.Context, createdBefore int64, after *SweepCursor, limit int) ([]dbm.Transaction, error) {
	var txns []dbm.Transaction
	q := infra.Conn(ctx, r.db).
		Where("status = ? AND created_at < ?", dbm.TxnStatusPending, createdBefore)
	err := afterCursor(q, "transactions", after).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) FindUncompensated(ctx context.Context, after *SweepCursor, limit int) ([]dbm.Transaction, error) {
	var txns []dbm.Transaction
	q := infra.Conn(ctx, r.db).Model(&dbm.Transaction{}).
		Select("transactions.*").
		Joins("JOIN orders ON orders.id = transactions.order_id AND orders.deleted_at IS NULL").
		Where("transactions.status IN ?", []dbm.TransactionStatus{dbm.TxnStatusFailed, dbm.TxnStatusCancelled}).
		Where("orders.status <> ? AND orders.payment_status NOT IN ?",
			dbm.OrderStatusCancelled, []dbm.PaymentStatus{dbm.PaymentStatusPaid, dbm.PaymentStatusRefunded}).
		Where(`NOT EXISTS (SELECT 1 FROM transactions sibling
			WHERE sibling.order_id = transactions.order_id
			AND sibling.status IN ? AND sibling.deleted_at IS NULL)`,
			[]dbm.TransactionStatus{dbm.TxnStatusPending, dbm.TxnStatusProcessing})
	err := afterCursor(q, "transactions", after).
		Order("transactions.created_at ASC, transactions.id ASC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func afterCursor(q *gorm.DB, table string, after *SweepCursor) *gorm.DB {
	if after == nil {
		return q
	}
	return q.Where("("+table+".created_at > ? OR ("+table+".created_at = ? AND "+table+".id > ?))",
		after.CreatedAt, after.CreatedAt, after.ID)
}

func (r *transactionRepository) Transition(ctx context.Context, id uuid.UUID, to dbm.TransactionStatus, fields map[string]interface{}) (bool, error) {
	from := dbm.OpenTransactionStatuses
	if to == dbm.TxnStatusProcessing {
		from = []dbm.TransactionStatus{dbm.TxnStatusPending}
	}

	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := infra.Conn(ctx, r.db).Model(&dbm.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) UpdateOpen(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	res := infra.Conn(ctx, r.db).Model(&dbm.Transaction{}).
		Where("id = ? AND status IN ?", id, dbm.OpenTransactionStatuses).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) RecordWebhookReceipt(ctx context.Context, id uuid.UUID, receivedAt int64, signature string) error {
	return infra.Conn(ctx, r.db).Model(&dbm.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"webhook_received_at": receivedAt,
			"webhook_signature":   signature,
		}).Error
}

func (r *transactionRepository) RecordGatewayFailure(ctx context.Context, id uuid.UUID, message string) error {
	return infra.Conn(ctx, r.db).Model(&dbm.Transaction{}).
		Where("id = ? AND status IN ?", id, dbm.OpenTransactionStatuses).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": message,
		}).Error
}

func (r *transactionRepository) ReopenForRetry(ctx context.Context, id uuid.UUID, orderCode int64, createdAt int64) (bool, error) {
	res := infra.Conn(ctx, r.db).Model(&dbm.Transaction{}).
		Where("id = ? AND status = ? AND payment_link_url = '' AND error_message <> ''", id, dbm.TxnStatusPending).
		Updates(map[string]interface{}{
			"gateway_order_code": orderCode,
			"created_at":         createdAt,
			"error_message":      "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
