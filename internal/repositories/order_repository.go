package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
)

type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*dbm.Order, error)
	AttachTransaction(ctx context.Context, id uuid.UUID, transactionID string, orderCode int64) error
	MarkPaid(ctx context.Context, id uuid.UUID, transactionID string, orderCode *int64, paidAt int64) (bool, error)

	// ClaimCancellation flips a non-cancelled, unpaid order to CANCELLED and
	// reports whether this call did it. It is the single gate in front of
	// stock and voucher restoration.
	ClaimCancellation(ctx context.Context, id uuid.UUID, reason string, at int64) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status dbm.PaymentStatus) error
	UpsertState(ctx context.Context, orderID uuid.UUID, state dbm.OrderStatus, note string) error
	FindState(ctx context.Context, orderID uuid.UUID) (*dbm.OrderState, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*dbm.Order, error) {
	var order dbm.Order
	err := infra.Conn(ctx, r.db).Preload("Items").First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) AttachTransaction(ctx context.Context, id uuid.UUID, transactionID string, orderCode int64) error {
	return infra.Conn(ctx, r.db).Model(&dbm.Order{}).
		Where("id = ? AND payment_status <> ?", id, dbm.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status":         dbm.PaymentStatusPending,
			"payment_transaction_id": transactionID,
			"gateway_order_code":     orderCode,
		}).Error
}

func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, transactionID string, orderCode *int64, paidAt int64) (bool, error) {
	updates := map[string]interface{}{
		"payment_status":         dbm.PaymentStatusPaid,
		"payment_transaction_id": transactionID,
		"paid_at":                paidAt,
	}
	if orderCode != nil {
		updates["gateway_order_code"] = *orderCode
	}

	res := infra.Conn(ctx, r.db).Model(&dbm.Order{}).
		Where("id = ? AND payment_status <> ?", id, dbm.PaymentStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) ClaimCancellation(ctx context.Context, id uuid.UUID, reason string, at int64) (bool, error) {
	res := infra.Conn(ctx, r.db).Model(&dbm.Order{}).
		Where("id = ? AND status <> ? AND payment_status <> ?", id, dbm.OrderStatusCancelled, dbm.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"status":        dbm.OrderStatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status dbm.PaymentStatus) error {
	return infra.Conn(ctx, r.db).Model(&dbm.Order{}).
		Where("id = ?", id).
		Update("payment_status", status).Error
}

func (r *orderRepository) UpsertState(ctx context.Context, orderID uuid.UUID, state dbm.OrderStatus, note string) error {
	record := dbm.OrderState{OrderID: orderID, State: state, Note: note}
	return infra.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "note", "updated_at"}),
	}).Create(&record).Error
}

func (r *orderRepository) FindState(ctx context.Context, orderID uuid.UUID) (*dbm.OrderState, error) {
	var state dbm.OrderState
	err := infra.Conn(ctx, r.db).First(&state, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}
