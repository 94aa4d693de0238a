package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"payflow/internal/gateway"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
	mem "payflow/pkg/memcache"
	"payflow/pkg/utils"
)

// payOS sends this order code when a webhook URL is registered.
const confirmationOrderCode int64 = 123

const receiptTTL = 10 * time.Minute

type WebhookResult struct {
	OrderCode     int64
	TransactionID string
	Status        dbm.TransactionStatus
	Applied       bool

	AlreadyTerminal bool
	Duplicate       bool // signature seen recently; not re-dispatched
	Confirmation    bool // webhook registration ping
	Compensation    *CompensationResult
}

// WebhookIngestor authenticates and applies gateway callbacks. A nil error
// means the delivery is acknowledged, including no-op redeliveries.
type WebhookIngestor interface {
	Handle(ctx context.Context, raw []byte, signature string) (*WebhookResult, error)
}

type webhookIngestor struct {
	gateway      gateway.Client
	txns         repositories.TransactionRepository
	orders       repositories.OrderRepository
	stateMachine TransactionStateMachine
	compensation CompensationService
	notifier     Notifier
	receipts     mem.ReceiptStore
	clock        utils.Clock
	logger       *zap.Logger
}

func NewWebhookIngestor(
	gw gateway.Client,
	txns repositories.TransactionRepository,
	orders repositories.OrderRepository,
	stateMachine TransactionStateMachine,
	compensation CompensationService,
	notifier Notifier,
	receipts mem.ReceiptStore,
	clock utils.Clock,
	logger *zap.Logger,
) WebhookIngestor {
	return &webhookIngestor{
		gateway:      gw,
		txns:         txns,
		orders:       orders,
		stateMachine: stateMachine,
		compensation: compensation,
		notifier:     notifier,
		receipts:     receipts,
		clock:        clock,
		logger:       logger,
	}
}

func (w *webhookIngestor) Handle(ctx context.Context, raw []byte, signature string) (*WebhookResult, error) {
	if !w.gateway.VerifyWebhookSignature(raw, signature) {
		w.logger.Warn("webhook signature rejected", zap.Int("payload_bytes", len(raw)))
		return nil, utils.ErrSignatureInvalid
	}

	event, err := w.gateway.ParseWebhookPayload(raw)
	if err != nil {
		return nil, err
	}
	if signature == "" {
		signature = event.Signature
	}
	log := w.logger.With(zap.Int64("order_code", event.OrderCode))

	txn, err := w.txns.FindByGatewayOrderCode(ctx, event.OrderCode)
	if err != nil {
		return nil, fmt.Errorf("%w: find transaction: %v", utils.ErrDatabaseError, err)
	}
	if txn == nil {
		if event.OrderCode == confirmationOrderCode {
			log.Info("webhook url confirmation received")
			return &WebhookResult{OrderCode: event.OrderCode, Confirmation: true}, nil
		}
		log.Warn("webhook for unknown order code")
		return nil, utils.ErrTransactionNotFound
	}
	log = log.With(zap.String("transaction_id", txn.TransactionID), zap.String("order_id", txn.OrderID.String()))

	if err := w.txns.RecordWebhookReceipt(ctx, txn.ID, w.clock().Unix(), signature); err != nil {
		return nil, fmt.Errorf("%w: record webhook receipt: %v", utils.ErrDatabaseError, err)
	}

	result := &WebhookResult{OrderCode: event.OrderCode, TransactionID: txn.TransactionID, Status: txn.Status}
	if w.receipts.Seen(signature) {
		log.Info("webhook redelivery acknowledged", zap.String("status", string(txn.Status)))
		result.Duplicate = true
		result.AlreadyTerminal = txn.Status.IsTerminal()
		return result, nil
	}

	if event.Success {
		err = w.applySuccess(ctx, log, txn, event, result)
	} else {
		err = w.applyFailure(ctx, txn, event, result)
	}
	if err != nil {
		return nil, err
	}

	w.receipts.Remember(signature, receiptTTL)
	return result, nil
}

func (w *webhookIngestor) applySuccess(ctx context.Context, log *zap.Logger, txn *dbm.Transaction, event *gateway.WebhookEvent, result *WebhookResult) error {
	if event.Amount != txn.AmountMinor {
		log.Warn("webhook amount differs from transaction amount",
			zap.Int64("webhook_amount", event.Amount),
			zap.Int64("amount", txn.AmountMinor))
	}

	in := TransitionInput{
		Source:              SourceWebhook,
		ResponseCode:        event.Code,
		ResponseDescription: event.Description,
		Bank:                bankDetails(event.Bank),
	}
	if t, ok := utils.ParseGatewayTime(event.TransactionDateTime); ok {
		at := t.Unix()
		in.TransactionDateTime = &at
	}

	res, err := w.stateMachine.Complete(ctx, txn, in)
	if err != nil {
		return err
	}
	fillResult(result, res)
	if res.Applied {
		notifyPaymentCompleted(ctx, w.orders, w.notifier, w.clock, log, txn)
	}
	return nil
}

func (w *webhookIngestor) applyFailure(ctx context.Context, txn *dbm.Transaction, event *gateway.WebhookEvent, result *WebhookResult) error {
	res, err := w.stateMachine.Fail(ctx, txn, TransitionInput{
		Source:              SourceWebhook,
		Reason:              reasonOr(event.Description, "payment failed"),
		ResponseCode:        event.Code,
		ResponseDescription: event.Description,
	})
	if err != nil {
		return err
	}
	fillResult(result, res)

	// Compensation is gated on the order, so re-running it on a redelivery is safe
	// and finishes a run that was interrupted.
	if !closedUnpaid(res.Transaction.Status) {
		return nil
	}
	comp, err := w.compensation.CancelOrder(ctx, txn.OrderID, res.Transaction.ErrorMessage)
	if err != nil {
		return err
	}
	result.Compensation = comp
	return nil
}

func fillResult(result *WebhookResult, res TransitionResult) {
	result.Applied = res.Applied
	result.AlreadyTerminal = res.AlreadyTerminal
	result.Status = res.Transaction.Status
}

// closedUnpaid reports whether an order behind a transaction in status s
// needs compensation.
func closedUnpaid(s dbm.TransactionStatus) bool {
	return s == dbm.TxnStatusFailed || s == dbm.TxnStatusCancelled
}

func bankDetails(b gateway.BankMetadata) *dbm.BankDetails {
	return &dbm.BankDetails{
		Reference:              b.Reference,
		AccountNumber:          b.AccountNumber,
		CounterAccountBankID:   b.CounterAccountBankID,
		CounterAccountBankName: b.CounterAccountBankName,
		CounterAccountName:     b.CounterAccountName,
		CounterAccountNumber:   b.CounterAccountNumber,
		VirtualAccountName:     b.VirtualAccountName,
		VirtualAccountNumber:   b.VirtualAccountNumber,
	}
}
