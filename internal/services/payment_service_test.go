package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payflow/internal/gateway"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/models/request_models"
	"payflow/pkg/utils"
)

func customer(f *fixture) utils.Caller {
	return utils.Caller{ID: f.customer, Role: utils.RoleCustomer}
}

var admin = utils.Caller{ID: uuid.New(), Role: utils.RoleAdmin}

func (h *harness) create(f *fixture) (int64, string) {
	h.t.Helper()
	resp, err := h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: f.order.ID.String()})
	require.NoError(h.t, err)
	return resp.GatewayOrderCode, resp.TransactionID
}

func TestCreatePayment(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()

	resp, err := h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{
		OrderID:      f.order.ID.String(),
		CustomerName: "Tran Thi B",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TransactionID)
	assert.NotZero(t, resp.GatewayOrderCode)
	assert.Equal(t, fmt.Sprintf("https://pay.payos.vn/web/%d", resp.GatewayOrderCode), resp.PaymentLink)
	assert.NotEmpty(t, resp.QRCode)
	assert.EqualValues(t, 250_000, resp.Amount)

	expiresAt := h.clock().Add(15 * time.Minute)
	assert.Equal(t, utils.FormatRFC3339VN(expiresAt), resp.ExpiresAt)

	require.Len(t, h.gateway.links, 1)
	link := h.gateway.links[0]
	assert.Equal(t, expiresAt.Unix(), link.ExpiresAt)
	assert.Equal(t, "Tran Thi B", link.Buyer.Name)
	assert.Equal(t, "a@example.com", link.Buyer.Email)
	assert.Equal(t, "https://shop.example/return", link.ReturnURL)

	txn, err := h.txns.FindByTransactionID(h.ctx, resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, dbm.TxnStatusPending, txn.Status)
	assert.Equal(t, resp.PaymentLink, txn.PaymentLinkURL)
	assert.JSONEq(t, fmt.Sprintf(`{"payment_link_status":"PENDING","expires_at":%d}`, expiresAt.Unix()), string(txn.Metadata))

	order := h.reloadOrder(f.order.ID)
	assert.Equal(t, dbm.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, resp.TransactionID, *order.PaymentTransactionID)
	assert.Equal(t, resp.GatewayOrderCode, *order.GatewayOrderCode)
}

func TestCreatePaymentRejections(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	h.create(f)

	_, err := h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: f.order.ID.String()})
	assert.ErrorIs(t, err, utils.ErrTransactionInProgress)

	stranger := utils.Caller{ID: uuid.New(), Role: utils.RoleCustomer}
	_, err = h.payments.CreatePayment(h.ctx, stranger, request_models.CreatePaymentRequest{OrderID: f.order.ID.String()})
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: uuid.NewString()})
	assert.ErrorIs(t, err, utils.ErrOrderNotFound)

	_, err = h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: "not-a-uuid"})
	assert.ErrorIs(t, err, utils.ErrValidation)

	paid := h.seedOrder()
	_, err = h.orders.MarkPaid(h.ctx, paid.order.ID, "TXN-PAID", nil, h.clock().Unix())
	require.NoError(t, err)
	_, err = h.payments.CreatePayment(h.ctx, customer(paid), request_models.CreatePaymentRequest{OrderID: paid.order.ID.String()})
	assert.ErrorIs(t, err, utils.ErrOrderAlreadyPaid)

	cheap := h.seedOrder()
	require.NoError(t, h.db.Model(&dbm.Order{}).Where("id = ?", cheap.order.ID).Update("total_amount", 999).Error)
	_, err = h.payments.CreatePayment(h.ctx, customer(cheap), request_models.CreatePaymentRequest{OrderID: cheap.order.ID.String()})
	assert.ErrorIs(t, err, utils.ErrInvalidAmount)
	assert.Zero(t, h.openCount(cheap.order.ID))
}

func TestCreatePaymentAtMostOneOpenTransaction(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: f.order.ID.String()})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, utils.ErrTransactionInProgress)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, h.openCount(f.order.ID))
}

func TestCreatePaymentGatewayFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	h.gateway.createErr = fmt.Errorf("%w: timeout", utils.ErrGatewayUnavailable)

	_, err := h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: f.order.ID.String()})
	assert.ErrorIs(t, err, utils.ErrGatewayUnavailable)

	open, err := h.txns.FindOpenByOrder(h.ctx, f.order.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, dbm.TxnStatusPending, open.Status)
	assert.Equal(t, 1, open.RetryCount)
	assert.Contains(t, open.ErrorMessage, "timeout")
	firstCode := *open.GatewayOrderCode

	h.gateway.createErr = nil
	h.advance(5 * time.Minute)
	resp, err := h.payments.CreatePayment(h.ctx, customer(f), request_models.CreatePaymentRequest{OrderID: f.order.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, open.TransactionID, resp.TransactionID)
	assert.NotEqual(t, firstCode, resp.GatewayOrderCode)
	assert.Equal(t, utils.FormatRFC3339VN(h.clock().Add(15*time.Minute)), resp.ExpiresAt)

	got := h.reloadTxn(open.ID)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, resp.PaymentLink, got.PaymentLinkURL)
	assert.EqualValues(t, 1, h.openCount(f.order.ID))
}

func TestVerifyPaymentPaid(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	code, txnID := h.create(f)
	h.gateway.status = &gateway.PaymentStatus{
		Status:     gateway.LinkStatusPaid,
		Amount:     250_000,
		AmountPaid: 250_000,
		Transactions: []gateway.GatewayTransaction{{
			Reference:           "FT777",
			Amount:              250_000,
			TransactionDateTime: "2025-09-24 15:12:00",
			Bank:                gateway.BankMetadata{CounterAccountName: "NGUYEN VAN A"},
		}},
	}

	stranger := utils.Caller{ID: uuid.New(), Role: utils.RoleCustomer}
	_, err := h.payments.VerifyPayment(h.ctx, stranger, code)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	resp, err := h.payments.VerifyPayment(h.ctx, customer(f), code)
	require.NoError(t, err)
	assert.Equal(t, txnID, resp.TransactionID)
	assert.Equal(t, string(dbm.TxnStatusCompleted), resp.Status)
	assert.True(t, resp.Changed)
	assert.EqualValues(t, 250_000, resp.AmountPaid)

	txn, err := h.txns.FindByTransactionID(h.ctx, txnID)
	require.NoError(t, err)
	assert.Equal(t, "FT777", txn.Reference)
	assert.Equal(t, dbm.PaymentStatusPaid, h.reloadOrder(f.order.ID).PaymentStatus)

	resp, err = h.payments.VerifyPayment(h.ctx, admin, code)
	require.NoError(t, err)
	assert.False(t, resp.Changed)
	assert.Equal(t, string(dbm.TxnStatusCompleted), resp.Status)

	_, err = h.payments.VerifyPayment(h.ctx, admin, 1)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestVerifyPaymentPaidNotifiesOnce(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	code, txnID := h.create(f)
	h.gateway.status = &gateway.PaymentStatus{Status: gateway.LinkStatusPaid, Amount: 250_000, AmountPaid: 250_000}

	_, err := h.payments.VerifyPayment(h.ctx, customer(f), code)
	require.NoError(t, err)
	require.Equal(t, []string{NotificationPaymentCompleted}, h.notifier.kinds())
	sent := h.notifier.sent[0]
	assert.Equal(t, txnID, sent.TransactionID)
	assert.Equal(t, f.order.ID, sent.OrderID)
	assert.Equal(t, f.order.OrderNumber, sent.OrderNumber)
	assert.Equal(t, "a@example.com", sent.Email)
	assert.EqualValues(t, 250_000, sent.Amount)

	_, err = h.payments.VerifyPayment(h.ctx, customer(f), code)
	require.NoError(t, err)
	_, err = h.ingestor.Handle(h.ctx, webhook(t, "00", code, 250_000), "")
	require.NoError(t, err)
	assert.Len(t, h.notifier.kinds(), 1)
}

func TestVerifyPaymentClosedLinkCompensates(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	code, _ := h.create(f)
	h.gateway.status = &gateway.PaymentStatus{Status: gateway.LinkStatusExpired}

	resp, err := h.payments.VerifyPayment(h.ctx, customer(f), code)
	require.NoError(t, err)
	assert.Equal(t, string(dbm.TxnStatusCancelled), resp.Status)
	assert.Equal(t, dbm.OrderStatusCancelled, h.reloadOrder(f.order.ID).Status)
	assert.Equal(t, 10, h.stock(f.product.ID))
}

func TestVerifyPaymentStillPending(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	code, _ := h.create(f)
	h.gateway.status = &gateway.PaymentStatus{Status: gateway.LinkStatusPending}

	resp, err := h.payments.VerifyPayment(h.ctx, customer(f), code)
	require.NoError(t, err)
	assert.Equal(t, string(dbm.TxnStatusPending), resp.Status)
	assert.False(t, resp.Changed)

	h.gateway.status = nil
	_, err = h.payments.VerifyPayment(h.ctx, customer(f), code)
	assert.ErrorIs(t, err, utils.ErrGatewayUnavailable)
}

func TestCancelPayment(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	code, txnID := h.create(f)

	resp, err := h.payments.CancelPayment(h.ctx, customer(f), code, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, txnID, resp.TransactionID)
	assert.Equal(t, string(dbm.TxnStatusCancelled), resp.Status)
	assert.True(t, resp.OrderCancelled)
	assert.False(t, resp.AlreadyCancelled)
	assert.Equal(t, []int64{code}, h.gateway.cancelled)

	assert.Equal(t, 10, h.stock(f.product.ID))
	order := h.reloadOrder(f.order.ID)
	assert.Equal(t, "changed my mind", order.CancelReason)

	resp, err = h.payments.CancelPayment(h.ctx, customer(f), code, "")
	require.NoError(t, err)
	assert.True(t, resp.AlreadyCancelled)
	assert.Equal(t, 10, h.stock(f.product.ID))
}

func TestCancelCompletedPaymentIsRejected(t *testing.T) {
	h := newHarness(t)
	f := h.seedOrder()
	code, _ := h.create(f)
	_, err := h.ingestor.Handle(h.ctx, webhook(t, "00", code, 250_000), "")
	require.NoError(t, err)

	_, err = h.payments.CancelPayment(h.ctx, customer(f), code, "")
	assert.ErrorIs(t, err, utils.ErrTransactionCompleted)
	assert.Equal(t, 8, h.stock(f.product.ID))
}

func TestListAndGetTransactionsAreOwnerScoped(t *testing.T) {
	h := newHarness(t)
	mine := h.seedOrder()
	theirs := h.seedOrder()
	_, myTxn := h.create(mine)
	h.create(theirs)

	page, err := h.payments.ListTransactions(h.ctx, customer(mine), request_models.ListTransactionsQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, myTxn, page.Items[0].TransactionID)

	page, err = h.payments.ListTransactions(h.ctx, admin, request_models.ListTransactionsQuery{Page: 1, PageSize: 20, Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	_, err = h.payments.ListTransactions(h.ctx, admin, request_models.ListTransactionsQuery{Page: 1, PageSize: 101})
	assert.ErrorIs(t, err, utils.ErrInvalidPageSize)
	_, err = h.payments.ListTransactions(h.ctx, admin, request_models.ListTransactionsQuery{Page: 0, PageSize: 10})
	assert.ErrorIs(t, err, utils.ErrInvalidPage)
	_, err = h.payments.ListTransactions(h.ctx, admin, request_models.ListTransactionsQuery{Page: 1, PageSize: 10, Status: "LOST"})
	assert.ErrorIs(t, err, utils.ErrValidation)

	got, err := h.payments.GetTransaction(h.ctx, customer(mine), myTxn)
	require.NoError(t, err)
	assert.Equal(t, string(dbm.TxnStatusPending), got.Status)

	byRowID, err := h.payments.GetTransaction(h.ctx, admin, got.ID)
	require.NoError(t, err)
	assert.Equal(t, myTxn, byRowID.TransactionID)

	_, err = h.payments.GetTransaction(h.ctx, customer(theirs), myTxn)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}
