package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
	"payflow/pkg/utils"
)

const (
	NotificationPaymentCompleted = "payment.completed"
	NotificationOrderCancelled   = "order.cancelled"
)

type Notification struct {
	Kind          string    `json:"kind"`
	CustomerID    uuid.UUID `json:"customerId"`
	Email         string    `json:"-"`
	OrderID       uuid.UUID `json:"orderId"`
	OrderNumber   string    `json:"orderNumber,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// Notifier delivers customer-facing notices. Delivery is best-effort: callers
// log a returned error and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Notification) error { return nil }

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("customer notification",
		zap.String("kind", n.Kind),
		zap.String("customer_id", n.CustomerID.String()),
		zap.String("order_id", n.OrderID.String()),
		zap.String("transaction_id", n.TransactionID),
		zap.String("reason", n.Reason))
	return nil
}

// RedisNotifier publishes notifications on a per-customer channel that the
// real-time gateway subscribes to.
type RedisNotifier struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisNotifier(rdb *redis.Client, prefix string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, prefix: prefix}
}

func (r *RedisNotifier) Channel(customerID uuid.UUID) string {
	return r.prefix + customerID.String()
}

func (r *RedisNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.Channel(n.CustomerID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

type MailNotifier struct {
	mail IMailService
}

func NewMailNotifier(mail IMailService) *MailNotifier {
	return &MailNotifier{mail: mail}
}

func (m *MailNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Email == "" {
		return nil
	}
	subject, body := mailContent(n)
	return m.mail.SendMailToNotifyUser(ctx, n.Email, subject, body, "", "")
}

func mailContent(n Notification) (subject, body string) {
	ref := n.OrderNumber
	if ref == "" {
		ref = n.OrderID.String()
	}
	switch n.Kind {
	case NotificationPaymentCompleted:
		return "Payment received",
			fmt.Sprintf("We received your payment of %d VND for order %s.", n.Amount, ref)
	case NotificationOrderCancelled:
		return "Order cancelled",
			fmt.Sprintf("Order %s was cancelled: %s.", ref, n.Reason)
	default:
		return "Order update", fmt.Sprintf("There is an update on order %s.", ref)
	}
}

// MultiNotifier fans a notification out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// notifyPaymentCompleted tells the customer their payment went through.
// Delivery failures are logged only.
func notifyPaymentCompleted(ctx context.Context, orders repositories.OrderRepository, notifier Notifier, clock utils.Clock, log *zap.Logger, txn *dbm.Transaction) {
	n := Notification{
		Kind:          NotificationPaymentCompleted,
		CustomerID:    txn.CustomerID,
		OrderID:       txn.OrderID,
		TransactionID: txn.TransactionID,
		Amount:        txn.AmountMinor,
		At:            clock(),
	}
	if order, err := orders.FindByID(ctx, txn.OrderID); err == nil && order != nil {
		n.Email = order.CustomerEmail
		n.OrderNumber = order.OrderNumber
	}
	if err := notifier.Notify(ctx, n); err != nil {
		log.Warn("payment notification failed", zap.Error(err))
	}
}
