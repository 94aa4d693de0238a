package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
	"payflow/pkg/utils"
)

// TransitionInput carries what the gateway (or a caller) reported alongside
// a transition.
type TransitionInput struct {
	Source              string
	Reason              string
	ResponseCode        string
	ResponseDescription string
	TransactionDateTime *int64
	Bank                *dbm.BankDetails
}

type TransitionResult struct {
	Transaction *dbm.Transaction // state after the attempt
	From        dbm.TransactionStatus
	Applied     bool

	// AlreadyTerminal is set when the transaction was closed before this call.
	// It is an idempotent no-op, not an error.
	AlreadyTerminal bool
}

// TransactionStateMachine applies gateway outcomes to transactions. Every
// transition is a conditional update on the current status, so concurrent
// callers cannot both succeed.
type TransactionStateMachine interface {
	MarkProcessing(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error)
	Complete(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error)
	Fail(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error)
	Cancel(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error)
}

type transactionStateMachine struct {
	txManager infra.TxManager
	txns      repositories.TransactionRepository
	orders    repositories.OrderRepository
	observer  TransitionObserver
	clock     utils.Clock
	logger    *zap.Logger
}

func NewTransactionStateMachine(
	txManager infra.TxManager,
	txns repositories.TransactionRepository,
	orders repositories.OrderRepository,
	observer TransitionObserver,
	clock utils.Clock,
	logger *zap.Logger,
) TransactionStateMachine {
	return &transactionStateMachine{
		txManager: txManager,
		txns:      txns,
		orders:    orders,
		observer:  observer,
		clock:     clock,
		logger:    logger,
	}
}

func (sm *transactionStateMachine) MarkProcessing(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error) {
	return sm.apply(ctx, txn, dbm.TxnStatusProcessing, gatewayFields(in), in)
}

func (sm *transactionStateMachine) Complete(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error) {
	fields := gatewayFields(in)
	fields["completed_at"] = sm.clock().Unix()
	fields["error_message"] = ""
	if in.TransactionDateTime != nil {
		fields["transaction_date_time"] = *in.TransactionDateTime
	}
	if b := in.Bank; b != nil {
		fields["reference"] = b.Reference
		fields["account_number"] = b.AccountNumber
		fields["counter_account_bank_id"] = b.CounterAccountBankID
		fields["counter_account_bank_name"] = b.CounterAccountBankName
		fields["counter_account_name"] = b.CounterAccountName
		fields["counter_account_number"] = b.CounterAccountNumber
		fields["virtual_account_name"] = b.VirtualAccountName
		fields["virtual_account_number"] = b.VirtualAccountNumber
	}
	return sm.apply(ctx, txn, dbm.TxnStatusCompleted, fields, in)
}

func (sm *transactionStateMachine) Fail(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error) {
	fields := gatewayFields(in)
	fields["failed_at"] = sm.clock().Unix()
	fields["error_message"] = reasonOr(in.Reason, "payment failed")
	return sm.apply(ctx, txn, dbm.TxnStatusFailed, fields, in)
}

func (sm *transactionStateMachine) Cancel(ctx context.Context, txn *dbm.Transaction, in TransitionInput) (TransitionResult, error) {
	fields := gatewayFields(in)
	fields["cancelled_at"] = sm.clock().Unix()
	fields["error_message"] = reasonOr(in.Reason, "payment cancelled")
	return sm.apply(ctx, txn, dbm.TxnStatusCancelled, fields, in)
}

func (sm *transactionStateMachine) apply(
	ctx context.Context,
	txn *dbm.Transaction,
	to dbm.TransactionStatus,
	fields map[string]interface{},
	in TransitionInput,
) (TransitionResult, error) {
	var applied, orderPaid bool
	err := sm.txManager.Exec(ctx, func(ctx context.Context) error {
		ok, err := sm.txns.Transition(ctx, txn.ID, to, fields)
		if err != nil {
			return err
		}
		applied = ok
		if !ok || to != dbm.TxnStatusCompleted {
			return nil
		}

		paidAt := fields["completed_at"].(int64)
		orderPaid, err = sm.orders.MarkPaid(ctx, txn.OrderID, txn.TransactionID, txn.GatewayOrderCode, paidAt)
		return err
	})
	if err != nil {
		sm.logger.Error("transaction transition failed",
			zap.String("transaction_id", txn.TransactionID),
			zap.String("order_id", txn.OrderID.String()),
			zap.String("status", string(to)),
			zap.Error(err))
		return TransitionResult{}, fmt.Errorf("%w: transition %s to %s: %v", utils.ErrDatabaseError, txn.TransactionID, to, err)
	}

	current, err := sm.txns.FindByID(ctx, txn.ID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("%w: reload %s: %v", utils.ErrDatabaseError, txn.TransactionID, err)
	}
	if current == nil {
		return TransitionResult{}, utils.ErrTransactionNotFound
	}

	result := TransitionResult{Transaction: current, From: txn.Status, Applied: applied}
	event := TransitionEvent{
		TransactionID: txn.TransactionID,
		OrderID:       txn.OrderID,
		From:          txn.Status,
		To:            to,
		Source:        in.Source,
		At:            sm.clock(),
		Detail:        map[string]interface{}{},
	}
	if in.ResponseCode != "" {
		event.Detail["response_code"] = in.ResponseCode
	}

	if applied {
		event.Kind = EventTransitioned
		if to == dbm.TxnStatusCompleted {
			event.Detail["order_paid"] = orderPaid
			if !orderPaid {
				sm.logger.Warn("order was already marked paid",
					zap.String("transaction_id", txn.TransactionID),
					zap.String("order_id", txn.OrderID.String()))
			}
		}
		if in.Reason != "" {
			event.Detail["reason"] = in.Reason
		}
		sm.observer.Observe(ctx, event)
		return result, nil
	}

	// Lost the compare-and-set, or the transaction was already where we wanted it.
	result.From = current.Status
	result.AlreadyTerminal = current.Status.IsTerminal()
	event.Kind = EventNoop
	event.From = current.Status
	event.Detail["target"] = string(to)
	sm.observer.Observe(ctx, event)

	if to == dbm.TxnStatusCompleted &&
		(current.Status == dbm.TxnStatusFailed || current.Status == dbm.TxnStatusCancelled) {
		sm.observer.Observe(ctx, TransitionEvent{
			Kind:          EventLatePayment,
			TransactionID: txn.TransactionID,
			OrderID:       txn.OrderID,
			From:          current.Status,
			To:            current.Status,
			Source:        in.Source,
			At:            sm.clock(),
			Detail: map[string]interface{}{
				"amount":        txn.AmountMinor,
				"response_code": in.ResponseCode,
			},
		})
	}
	return result, nil
}

func gatewayFields(in TransitionInput) map[string]interface{} {
	fields := map[string]interface{}{}
	if in.ResponseCode != "" {
		fields["response_code"] = in.ResponseCode
	}
	if in.ResponseDescription != "" {
		fields["response_description"] = in.ResponseDescription
	}
	return fields
}

func reasonOr(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}
