package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"payflow/internal/gateway"
	"payflow/internal/infra"
	dbm "payflow/internal/models/db_models"
	"payflow/internal/repositories"
	mem "payflow/pkg/memcache"
	"payflow/pkg/utils"
)

const testChecksumKey = "test-checksum-key"

// fakeGateway keeps the real signature and payload handling and replaces the
// network calls.
type fakeGateway struct {
	gateway.Client

	mu        sync.Mutex
	createErr error
	links     []gateway.CreateLinkRequest
	status    *gateway.PaymentStatus
	cancelled []int64
}

func newFakeGateway(t *testing.T) *fakeGateway {
	client, err := gateway.NewPayOSClient(gateway.PayOSConfig{ChecksumKey: testChecksumKey}, zap.NewNop())
	require.NoError(t, err)
	return &fakeGateway{Client: client}
}

func (f *fakeGateway) CreatePaymentLink(_ context.Context, req gateway.CreateLinkRequest) (*gateway.PaymentLink, error) {
	if err := gateway.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gateway.PaymentLink{
		PaymentLinkID: fmt.Sprintf("link-%d", req.OrderCode),
		CheckoutURL:   fmt.Sprintf("https://pay.payos.vn/web/%d", req.OrderCode),
		QRCode:        "00020101021238570010A000000727",
		Status:        gateway.LinkStatusPending,
	}, nil
}

func (f *fakeGateway) GetPaymentStatus(_ context.Context, orderCode int64) (*gateway.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		return nil, fmt.Errorf("%w: no status", utils.ErrGatewayUnavailable)
	}
	s := *f.status
	s.OrderCode = orderCode
	return &s, nil
}

func (f *fakeGateway) CancelPaymentLink(_ context.Context, orderCode int64, reason string) (*gateway.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderCode)
	return &gateway.PaymentStatus{OrderCode: orderCode, Status: gateway.LinkStatusCancelled, CancellationReason: reason}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type harness struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	txns     repositories.TransactionRepository
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	vouchers repositories.VoucherRepository
	audits   repositories.AuditRepository

	gateway  *fakeGateway
	notifier *recordingNotifier
	receipts *mem.Receipts

	nowMu sync.Mutex
	now   time.Time

	stateMachine TransactionStateMachine
	compensation CompensationService
	ingestor     WebhookIngestor
	expiration   ExpirationService
	payments     PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := infra.OpenMemory(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		txns:     repositories.NewTransactionRepository(db),
		orders:   repositories.NewOrderRepository(db),
		products: repositories.NewProductRepository(db),
		vouchers: repositories.NewVoucherRepository(db),
		audits:   repositories.NewAuditRepository(db),
		gateway:  newFakeGateway(t),
		notifier: &recordingNotifier{},
		receipts: mem.NewReceipts(),
		now:      time.Date(2025, 9, 24, 8, 0, 0, 0, time.UTC),
	}

	logger := zap.NewNop()
	observer := Observers{NewAuditLogObserver(h.audits, logger), NewLogObserver(logger)}
	txManager := infra.NewTxManager(db)

	h.stateMachine = NewTransactionStateMachine(txManager, h.txns, h.orders, observer, h.clock, logger)
	h.compensation = NewCompensationService(h.orders, h.products, h.vouchers, h.notifier, observer, h.clock, logger)
	h.ingestor = NewWebhookIngestor(h.gateway, h.txns, h.orders, h.stateMachine, h.compensation, h.notifier, h.receipts, h.clock, logger)
	h.expiration = NewExpirationService(
		ExpirationConfig{PendingTimeout: 15 * time.Minute, BatchSize: 10, Workers: 4},
		h.txns, h.stateMachine, h.compensation, h.gateway, h.clock, logger)
	h.payments = NewPaymentService(
		PaymentConfig{ReturnURL: "https://shop.example/return", CancelURL: "https://shop.example/cancel", PendingTimeout: 15 * time.Minute},
		txManager, h.txns, h.orders, h.gateway, gateway.NewOrderCodeGenerator(), h.stateMachine, h.compensation, h.notifier, h.clock, logger)
	return h
}

func (h *harness) clock() time.Time {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.nowMu.Lock()
	defer h.nowMu.Unlock()
	h.now = h.now.Add(d)
}

type fixture struct {
	customer uuid.UUID
	product  *dbm.Product
	voucher  *dbm.Voucher
	order    *dbm.Order
}

// seedOrder creates an unpaid 250,000 VND order holding 2 units of a product
// whose remaining stock is 8, with a voucher applied.
func (h *harness) seedOrder() *fixture {
	h.t.Helper()
	customer := uuid.New()

	product := &dbm.Product{Name: "Ao thun", SKU: "SKU-" + uuid.NewString()[:8], Stock: 8}
	require.NoError(h.t, h.db.Create(product).Error)

	voucher := &dbm.Voucher{Code: "SALE-" + uuid.NewString()[:6], UsageLimit: 100, UsedCount: 1}
	require.NoError(h.t, h.db.Create(voucher).Error)

	order := &dbm.Order{
		OrderNumber:   "ORD-" + uuid.NewString()[:8],
		CustomerID:    customer,
		CustomerName:  "Nguyen Van A",
		CustomerEmail: "a@example.com",
		TotalAmount:   250_000,
		Status:        dbm.OrderStatusPending,
		PaymentStatus: dbm.PaymentStatusUnpaid,
		VoucherID:     &voucher.ID,
		Items:         []dbm.OrderItem{{ProductID: product.ID, Quantity: 2, UnitPrice: 125_000}},
	}
	require.NoError(h.t, h.db.Create(order).Error)
	require.NoError(h.t, h.db.Create(&dbm.VoucherUsage{VoucherID: voucher.ID, OrderID: order.ID, CustomerID: customer}).Error)

	return &fixture{customer: customer, product: product, voucher: voucher, order: order}
}

// seedPending inserts a PENDING transaction for the fixture's order, created at
// the harness clock.
func (h *harness) seedPending(f *fixture, orderCode int64) *dbm.Transaction {
	h.t.Helper()
	txn := &dbm.Transaction{
		TransactionID:    fmt.Sprintf("TXN%d", orderCode),
		GatewayOrderCode: &orderCode,
		OrderID:          f.order.ID,
		CustomerID:       f.customer,
		PaymentMethodID:  dbm.PaymentMethodPayOS,
		AmountMinor:      f.order.TotalAmount,
		Currency:         "VND",
		Status:           dbm.TxnStatusPending,
		PaymentLinkURL:   fmt.Sprintf("https://pay.payos.vn/web/%d", orderCode),
	}
	txn.CreatedAt = h.clock().Unix()
	require.NoError(h.t, h.txns.Create(h.ctx, txn))
	require.NoError(h.t, h.orders.AttachTransaction(h.ctx, f.order.ID, txn.TransactionID, orderCode))
	return txn
}

func (h *harness) reloadTxn(id uuid.UUID) *dbm.Transaction {
	h.t.Helper()
	txn, err := h.txns.FindByID(h.ctx, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, txn)
	return txn
}

func (h *harness) reloadOrder(id uuid.UUID) *dbm.Order {
	h.t.Helper()
	order, err := h.orders.FindByID(h.ctx, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, order)
	return order
}

func (h *harness) stock(productID uuid.UUID) int {
	h.t.Helper()
	p, err := h.products.FindByID(h.ctx, productID)
	require.NoError(h.t, err)
	return p.Stock
}

func (h *harness) voucherUsed(voucherID uuid.UUID) int {
	h.t.Helper()
	v, err := h.vouchers.FindByID(h.ctx, voucherID)
	require.NoError(h.t, err)
	return v.UsedCount
}

func (h *harness) auditEvents(transactionID string) []string {
	h.t.Helper()
	entries, err := h.audits.ListByTransaction(h.ctx, transactionID)
	require.NoError(h.t, err)
	events := make([]string, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.Event)
	}
	return events
}

func (h *harness) openCount(orderID uuid.UUID) int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(&dbm.Transaction{}).
		Where("order_id = ? AND status IN ?", orderID, dbm.OpenTransactionStatuses).
		Count(&n).Error)
	return n
}

// webhook builds a payOS webhook body signed with the test checksum key.
func webhook(t *testing.T, code string, orderCode, amount int64) []byte {
	t.Helper()
	data := map[string]interface{}{
		"orderCode":              orderCode,
		"amount":                 amount,
		"description":            "Thanh toan don hang",
		"accountNumber":          "12345678",
		"reference":              fmt.Sprintf("FT%d", orderCode),
		"transactionDateTime":    "2025-09-24 15:12:00",
		"currency":               "VND",
		"paymentLinkId":          fmt.Sprintf("link-%d", orderCode),
		"code":                   code,
		"desc":                   descFor(code),
		"counterAccountBankId":   "970415",
		"counterAccountBankName": "VietinBank",
		"counterAccountName":     "NGUYEN VAN A",
		"counterAccountNumber":   "0011223344",
		"virtualAccountName":     "",
		"virtualAccountNumber":   "",
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	sig, err := gateway.SignData(raw, testChecksumKey)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"code":      code,
		"desc":      descFor(code),
		"success":   code == gateway.CodeSuccess,
		"data":      json.RawMessage(raw),
		"signature": sig,
	})
	require.NoError(t, err)
	return body
}

func descFor(code string) string {
	if code == gateway.CodeSuccess {
		return "success"
	}
	return "payment failed"
}

var errBoom = errors.New("boom")
