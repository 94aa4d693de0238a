package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
)

const (
	EventTransitioned = "transaction.transitioned"
	EventNoop         = "transaction.noop"
	EventCompensated  = "order.compensated"
	EventLatePayment  = "payment.late"
)

// Sources of a transition, recorded with every event.
const (
	SourceWebhook   = "webhook"
	SourceVerify    = "verify"
	SourceScheduler = "scheduler"
	SourceCustomer  = "customer"
	SourceAdmin     = "admin"
)

// TransitionEvent describes something that already committed.
type TransitionEvent struct {
	Kind          string
	TransactionID string
	OrderID       uuid.UUID
	From          dbm.TransactionStatus
	To            dbm.TransactionStatus
	Source        string
	Detail        map[string]interface{}
	At            time.Time
}

// TransitionObserver is notified after a transition or compensation commits.
// Observers must not fail the operation that produced the event.
type TransitionObserver interface {
	Observe(ctx context.Context, event TransitionEvent)
}

type Observers []TransitionObserver

func (o Observers) Observe(ctx context.Context, event TransitionEvent) {
	for _, obs := range o {
		obs.Observe(ctx, event)
	}
}

type AuditLogObserver struct {
	audits repositories.AuditRepository
	logger *zap.Logger
}

func NewAuditLogObserver(audits repositories.AuditRepository, logger *zap.Logger) *AuditLogObserver {
	return &AuditLogObserver{audits: audits, logger: logger}
}

func (a *AuditLogObserver) Observe(ctx context.Context, event TransitionEvent) {
	entry := &dbm.AuditLog{
		Event:         event.Kind,
		TransactionID: event.TransactionID,
		FromStatus:    string(event.From),
		ToStatus:      string(event.To),
		Source:        event.Source,
	}
	if event.OrderID != uuid.Nil {
		orderID := event.OrderID
		entry.OrderID = &orderID
	}
	if !event.At.IsZero() {
		entry.CreatedAt = event.At.Unix()
	}
	if len(event.Detail) > 0 {
		if payload, err := json.Marshal(event.Detail); err == nil {
			entry.Payload = payload
		}
	}

	// The operation has committed; an audit write failure is only logged.
	if err := a.audits.Create(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Error("write audit log failed",
			zap.String("event", event.Kind),
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
	}
}

type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) Observe(_ context.Context, event TransitionEvent) {
	fields := []zap.Field{
		zap.String("event", event.Kind),
		zap.String("transaction_id", event.TransactionID),
		zap.String("order_id", event.OrderID.String()),
		zap.String("from", string(event.From)),
		zap.String("status", string(event.To)),
		zap.String("source", event.Source),
	}
	if len(event.Detail) > 0 {
		fields = append(fields, zap.Any("detail", event.Detail))
	}

	switch event.Kind {
	case EventLatePayment:
		l.logger.Warn("payment received for a closed transaction; needs refund review", fields...)
	case EventNoop:
		l.logger.Debug("transition skipped", fields...)
	default:
		l.logger.Info("payment event", fields...)
	}
}
