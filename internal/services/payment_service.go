package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"payflow/internal/gateway"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/models/request_models"
	"payflow/internal/models/response_models"
	"payflow/internal/repositories"
	"payflow/pkg/utils"
)

const (
	currencyVND          = "VND"
	maxOrderCodeAttempts = 3
	maxPageSize          = 100
)

type PaymentConfig struct {
	ReturnURL      string
	CancelURL      string
	PendingTimeout time.Duration
}

type PaymentService interface {
	CreatePayment(ctx context.Context, caller utils.Caller, req request_models.CreatePaymentRequest) (*response_models.CreatePaymentResponse, error)
	VerifyPayment(ctx context.Context, caller utils.Caller, orderCode int64) (*response_models.VerifyPaymentResponse, error)
	CancelPayment(ctx context.Context, caller utils.Caller, orderCode int64, reason string) (*response_models.CancelPaymentResponse, error)
	ListTransactions(ctx context.Context, caller utils.Caller, query request_models.ListTransactionsQuery) (*response_models.TransactionPage, error)
	GetTransaction(ctx context.Context, caller utils.Caller, id string) (*response_models.TransactionResponse, error)
}

type paymentService struct {
	cfg          PaymentConfig
	txManager    infra.TxManager
	txns         repositories.TransactionRepository
	orders       repositories.OrderRepository
	gateway      gateway.Client
	codes        *gateway.OrderCodeGenerator
	stateMachine TransactionStateMachine
	compensation CompensationService
	notifier     Notifier
	clock        utils.Clock
	logger       *zap.Logger
}

func NewPaymentService(
	cfg PaymentConfig,
	txManager infra.TxManager,
	txns repositories.TransactionRepository,
	orders repositories.OrderRepository,
	gw gateway.Client,
	codes *gateway.OrderCodeGenerator,
	stateMachine TransactionStateMachine,
	compensation CompensationService,
	notifier Notifier,
	clock utils.Clock,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		cfg:          cfg,
		txManager:    txManager,
		txns:         txns,
		orders:       orders,
		gateway:      gw,
		codes:        codes,
		stateMachine: stateMachine,
		compensation: compensation,
		notifier:     notifier,
		clock:        clock,
		logger:       logger,
	}
}

func (p *paymentService) CreatePayment(ctx context.Context, caller utils.Caller, req request_models.CreatePaymentRequest) (*response_models.CreatePaymentResponse, error) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: orderId must be a uuid", utils.ErrValidation)
	}

	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %v", utils.ErrDatabaseError, err)
	}
	if order == nil {
		return nil, utils.ErrOrderNotFound
	}
	if !caller.CanAccess(order.CustomerID) {
		return nil, utils.ErrForbidden
	}
	switch {
	case order.PaymentStatus == dbm.PaymentStatusPaid:
		return nil, utils.ErrOrderAlreadyPaid
	case order.Status == dbm.OrderStatusCancelled:
		return nil, utils.ErrOrderCancelled
	}
	if err := gateway.ValidateAmount(order.TotalAmount); err != nil {
		return nil, err
	}

	txn, err := p.openTransaction(ctx, order)
	if err != nil {
		return nil, err
	}
	log := p.logger.With(
		zap.String("transaction_id", txn.TransactionID),
		zap.String("order_id", order.ID.String()),
		zap.Int64("order_code", *txn.GatewayOrderCode))

	expiresAt := time.Unix(txn.CreatedAt, 0).Add(p.cfg.PendingTimeout)
	link, err := p.gateway.CreatePaymentLink(ctx, gateway.CreateLinkRequest{
		OrderCode:   *txn.GatewayOrderCode,
		Amount:      txn.AmountMinor,
		Description: "Thanh toan " + order.OrderNumber,
		ItemName:    "Order " + order.OrderNumber,
		Buyer: gateway.BuyerInfo{
			Name:  firstNonEmpty(req.CustomerName, order.CustomerName),
			Email: firstNonEmpty(req.CustomerEmail, order.CustomerEmail),
			Phone: firstNonEmpty(req.CustomerPhone, order.CustomerPhone),
		},
		ReturnURL: p.cfg.ReturnURL,
		CancelURL: p.cfg.CancelURL,
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		// The transaction stays PENDING: a retry reuses it, otherwise the
		// expiration sweep closes it.
		if recErr := p.txns.RecordGatewayFailure(ctx, txn.ID, err.Error()); recErr != nil {
			log.Error("record gateway failure", zap.Error(recErr))
		}
		return nil, err
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"payment_link_status": link.Status,
		"expires_at":          expiresAt.Unix(),
	})
	ok, err := p.txns.UpdateOpen(ctx, txn.ID, map[string]interface{}{
		"payment_link_id":  link.PaymentLinkID,
		"payment_link_url": link.CheckoutURL,
		"qr_code":          link.QRCode,
		"metadata":         meta,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: store payment link: %v", utils.ErrDatabaseError, err)
	}
	if !ok {
		log.Warn("transaction closed before its payment link was stored")
	}
	log.Info("payment link created")

	return &response_models.CreatePaymentResponse{
		TransactionID:    txn.TransactionID,
		GatewayOrderCode: *txn.GatewayOrderCode,
		PaymentLink:      link.CheckoutURL,
		QRCode:           link.QRCode,
		Amount:           txn.AmountMinor,
		Status:           string(dbm.TxnStatusPending),
		ExpiresAt:        utils.FormatRFC3339VN(expiresAt),
	}, nil
}

// openTransaction returns the PENDING transaction to attach a new payment link
// to: a fresh one, or an open one whose link creation previously failed.
func (p *paymentService) openTransaction(ctx context.Context, order *dbm.Order) (*dbm.Transaction, error) {
	open, err := p.txns.FindOpenByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: find open transaction: %v", utils.ErrDatabaseError, err)
	}
	if open != nil {
		if open.Status != dbm.TxnStatusPending || open.PaymentLinkURL != "" || open.ErrorMessage == "" {
			return nil, utils.ErrTransactionInProgress
		}
		return p.reuseTransaction(ctx, open)
	}

	for attempt := 1; ; attempt++ {
		code := p.codes.Next()
		txn := &dbm.Transaction{
			TransactionID:    newTransactionID(),
			GatewayOrderCode: &code,
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			PaymentMethodID:  dbm.PaymentMethodPayOS,
			AmountMinor:      order.TotalAmount,
			Currency:         currencyVND,
			Status:           dbm.TxnStatusPending,
		}
		txn.CreatedAt = p.clock().Unix()

		err := p.txManager.Exec(ctx, func(ctx context.Context) error {
			if err := p.txns.Create(ctx, txn); err != nil {
				return err
			}
			return p.orders.AttachTransaction(ctx, order.ID, txn.TransactionID, code)
		})
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: create transaction: %v", utils.ErrDatabaseError, err)
		}

		// Either a concurrent request opened a transaction for this order or
		// the order code collided with another instance's.
		if other, findErr := p.txns.FindOpenByOrder(ctx, order.ID); findErr == nil && other != nil {
			return nil, utils.ErrTransactionInProgress
		}
		if attempt == maxOrderCodeAttempts {
			return nil, fmt.Errorf("%w: create transaction: %v", utils.ErrDatabaseError, err)
		}
		p.logger.Warn("order code collision, retrying", zap.Int64("order_code", code))
	}
}

// reuseTransaction gives a PENDING transaction whose link creation failed a new
// order code and restarts its pending window.
func (p *paymentService) reuseTransaction(ctx context.Context, txn *dbm.Transaction) (*dbm.Transaction, error) {
	code := p.codes.Next()
	now := p.clock().Unix()

	err := p.txManager.Exec(ctx, func(ctx context.Context) error {
		ok, err := p.txns.ReopenForRetry(ctx, txn.ID, code, now)
		if err != nil {
			return err
		}
		if !ok {
			return utils.ErrTransactionInProgress
		}
		return p.orders.AttachTransaction(ctx, txn.OrderID, txn.TransactionID, code)
	})
	if err != nil {
		if errors.Is(err, utils.ErrTransactionInProgress) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reuse transaction: %v", utils.ErrDatabaseError, err)
	}

	p.logger.Info("retrying payment link for open transaction",
		zap.String("transaction_id", txn.TransactionID),
		zap.Int("retry_count", txn.RetryCount),
		zap.Int64("order_code", code))
	txn.GatewayOrderCode = &code
	txn.CreatedAt = now
	return txn, nil
}

func (p *paymentService) VerifyPayment(ctx context.Context, caller utils.Caller, orderCode int64) (*response_models.VerifyPaymentResponse, error) {
	txn, err := p.ownedByOrderCode(ctx, caller, orderCode)
	if err != nil {
		return nil, err
	}

	resp := &response_models.VerifyPaymentResponse{
		TransactionID:    txn.TransactionID,
		GatewayOrderCode: orderCode,
		Status:           string(txn.Status),
	}
	if txn.Status.IsTerminal() {
		return resp, nil
	}

	status, err := p.gateway.GetPaymentStatus(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	resp.GatewayStatus = status.Status
	resp.AmountPaid = status.AmountPaid

	var res TransitionResult
	switch {
	case status.IsPaid():
		in := TransitionInput{Source: SourceVerify, ResponseCode: gateway.CodeSuccess, ResponseDescription: "verified"}
		if len(status.Transactions) > 0 {
			paid := status.Transactions[0]
			in.Bank = bankDetails(paid.Bank)
			in.Bank.Reference = paid.Reference
			if t, ok := utils.ParseGatewayTime(paid.TransactionDateTime); ok {
				at := t.Unix()
				in.TransactionDateTime = &at
			}
		}
		res, err = p.stateMachine.Complete(ctx, txn, in)
		if err == nil && res.Applied {
			log := p.logger.With(zap.Int64("order_code", orderCode), zap.String("transaction_id", txn.TransactionID))
			notifyPaymentCompleted(ctx, p.orders, p.notifier, p.clock, log, res.Transaction)
		}
	case status.IsClosed():
		reason := reasonOr(status.CancellationReason, "payment link "+strings.ToLower(status.Status))
		res, err = p.stateMachine.Cancel(ctx, txn, TransitionInput{Source: SourceVerify, Reason: reason})
		if err == nil && closedUnpaid(res.Transaction.Status) {
			_, err = p.compensation.CancelOrder(ctx, txn.OrderID, reason)
		}
	case status.Status == gateway.LinkStatusProcessing:
		res, err = p.stateMachine.MarkProcessing(ctx, txn, TransitionInput{Source: SourceVerify})
	default:
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	resp.Status = string(res.Transaction.Status)
	resp.Changed = res.Applied
	return resp, nil
}

func (p *paymentService) CancelPayment(ctx context.Context, caller utils.Caller, orderCode int64, reason string) (*response_models.CancelPaymentResponse, error) {
	txn, err := p.ownedByOrderCode(ctx, caller, orderCode)
	if err != nil {
		return nil, err
	}

	source := SourceCustomer
	if caller.IsAdmin() && caller.ID != txn.CustomerID {
		source = SourceAdmin
	}
	reason = reasonOr(reason, "cancelled by "+source)

	switch txn.Status {
	case dbm.TxnStatusCompleted:
		return nil, utils.ErrTransactionCompleted
	case dbm.TxnStatusRefunded:
		return nil, fmt.Errorf("%w: transaction already refunded", utils.ErrValidation)
	}

	res, err := p.stateMachine.Cancel(ctx, txn, TransitionInput{Source: source, Reason: reason})
	if err != nil {
		return nil, err
	}
	if res.Transaction.Status == dbm.TxnStatusCompleted {
		return nil, utils.ErrTransactionCompleted
	}

	if res.Applied && txn.PaymentLinkURL != "" {
		if _, err := p.gateway.CancelPaymentLink(ctx, orderCode, reason); err != nil {
			p.logger.Warn("cancel payment link failed", zap.Int64("order_code", orderCode), zap.Error(err))
		}
	}

	resp := &response_models.CancelPaymentResponse{
		TransactionID: txn.TransactionID,
		Status:        string(res.Transaction.Status),
	}
	if !closedUnpaid(res.Transaction.Status) {
		return resp, nil
	}

	comp, err := p.compensation.CancelOrder(ctx, txn.OrderID, reason)
	if err != nil {
		return nil, err
	}
	resp.OrderCancelled = true
	resp.AlreadyCancelled = comp.AlreadyCancelled
	for _, f := range comp.StepFailures {
		resp.StepFailures = append(resp.StepFailures, f.String())
	}
	return resp, nil
}

func (p *paymentService) ListTransactions(ctx context.Context, caller utils.Caller, query request_models.ListTransactionsQuery) (*response_models.TransactionPage, error) {
	if query.Page < 1 {
		return nil, utils.ErrInvalidPage
	}
	if query.PageSize < 1 || query.PageSize > maxPageSize {
		return nil, utils.ErrInvalidPageSize
	}

	filter := repositories.TransactionFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := dbm.TransactionStatus(strings.ToUpper(query.Status))
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", utils.ErrValidation, query.Status)
		}
		filter.Status = status
	}
	if !caller.IsAdmin() {
		customerID := caller.ID
		filter.CustomerID = &customerID
	}

	txns, total, err := p.txns.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", utils.ErrDatabaseError, err)
	}

	items := make([]response_models.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i]))
	}
	return &response_models.TransactionPage{
		Items:    items,
		Page:     query.Page,
		PageSize: query.PageSize,
		Total:    total,
	}, nil
}

// GetTransaction accepts either the transaction id or the row uuid. Other
// customers' transactions are reported as not found.
func (p *paymentService) GetTransaction(ctx context.Context, caller utils.Caller, id string) (*response_models.TransactionResponse, error) {
	txn, err := p.txns.FindByTransactionID(ctx, id)
	if err == nil && txn == nil {
		if rowID, parseErr := uuid.Parse(id); parseErr == nil {
			txn, err = p.txns.FindByID(ctx, rowID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load transaction: %v", utils.ErrDatabaseError, err)
	}
	if txn == nil || !caller.CanAccess(txn.CustomerID) {
		return nil, utils.ErrTransactionNotFound
	}

	resp := toTransactionResponse(txn)
	return &resp, nil
}

func (p *paymentService) ownedByOrderCode(ctx context.Context, caller utils.Caller, orderCode int64) (*dbm.Transaction, error) {
	txn, err := p.txns.FindByGatewayOrderCode(ctx, orderCode)
	if err != nil {
		return nil, fmt.Errorf("%w: load transaction: %v", utils.ErrDatabaseError, err)
	}
	if txn == nil {
		return nil, utils.ErrTransactionNotFound
	}
	if !caller.CanAccess(txn.CustomerID) {
		return nil, utils.ErrForbidden
	}
	return txn, nil
}

func toTransactionResponse(t *dbm.Transaction) response_models.TransactionResponse {
	resp := response_models.TransactionResponse{
		ID:                  t.ID.String(),
		TransactionID:       t.TransactionID,
		GatewayOrderCode:    t.GatewayOrderCode,
		OrderID:             t.OrderID.String(),
		CustomerID:          t.CustomerID.String(),
		PaymentMethod:       t.PaymentMethodID,
		Amount:              t.AmountMinor,
		Currency:            t.Currency,
		Status:              string(t.Status),
		ResponseCode:        t.ResponseCode,
		ResponseDescription: t.ResponseDescription,
		PaymentLinkURL:      t.PaymentLinkURL,
		QRCode:              t.QRCode,
		RetryCount:          t.RetryCount,
		ErrorMessage:        t.ErrorMessage,
		CreatedAt:           utils.FormatRFC3339VN(utils.FromUnixSecondsVN(t.CreatedAt)),
		TransactionDateTime: utils.FormatUnixPtrVN(t.TransactionDateTime),
		CompletedAt:         utils.FormatUnixPtrVN(t.CompletedAt),
		FailedAt:            utils.FormatUnixPtrVN(t.FailedAt),
		CancelledAt:         utils.FormatUnixPtrVN(t.CancelledAt),
		WebhookReceivedAt:   utils.FormatUnixPtrVN(t.WebhookReceivedAt),
	}
	if t.Status == dbm.TxnStatusCompleted && t.Reference != "" {
		resp.Bank = &response_models.BankInfoResponse{
			Reference:              t.Reference,
			AccountNumber:          t.AccountNumber,
			CounterAccountBankID:   t.CounterAccountBankID,
			CounterAccountBankName: t.CounterAccountBankName,
			CounterAccountName:     t.CounterAccountName,
			CounterAccountNumber:   t.CounterAccountNumber,
			VirtualAccountName:     t.VirtualAccountName,
			VirtualAccountNumber:   t.VirtualAccountNumber,
		}
	}
	return resp
}

func newTransactionID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN" + strings.ToUpper(id[:20])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
