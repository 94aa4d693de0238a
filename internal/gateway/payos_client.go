package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"payflow/pkg/utils"
)

type PayOSConfig struct {
	ClientID    string // e.g. P-xxxxx
	ApiKey      string
	ChecksumKey string // secret used to sign webhooks
	Timeout     time.Duration
}

// provider is the raw payOS API; the SDK adapter and test fakes implement it.
type provider interface {
	CreatePaymentLink(req checkoutRequest) (*PaymentLink, error)
	GetPaymentLinkInformation(orderCode int64) (*PaymentStatus, error)
	CancelPaymentLink(orderCode int64, reason string) (*PaymentStatus, error)
}

type payosClient struct {
	provider    provider
	checksumKey string
	timeout     time.Duration
	logger      *zap.Logger
}

func NewPayOSClient(cfg PayOSConfig, logger *zap.Logger) (Client, error) {
	p, err := newSDKProvider(cfg)
	if err != nil {
		if !errors.Is(err, errMissingCredentials) {
			return nil, err
		}
		logger.Warn("payOS credentials missing; gateway calls will fail until configured")
		p = unconfiguredProvider{}
	}
	return newPayOSClient(p, cfg, logger), nil
}

func newPayOSClient(p provider, cfg PayOSConfig, logger *zap.Logger) *payosClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &payosClient{
		provider:    p,
		checksumKey: cfg.ChecksumKey,
		timeout:     timeout,
		logger:      logger,
	}
}

func (c *payosClient) CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (*PaymentLink, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	body := checkoutRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: TruncateDescription(req.Description),
		Items:       []checkoutItem{{Name: req.ItemName, Quantity: 1, Price: req.Amount}},
		CancelURL:   req.CancelURL,
		ReturnURL:   req.ReturnURL,
		BuyerName:   optional(req.Buyer.Name),
		BuyerEmail:  optional(req.Buyer.Email),
		BuyerPhone:  optional(req.Buyer.Phone),
	}
	if body.Items[0].Name == "" {
		body.Items[0].Name = body.Description
	}
	if req.ExpiresAt > 0 {
		body.ExpiredAt = &req.ExpiresAt
	}

	link, err := callWithTimeout(ctx, c.timeout, func() (*PaymentLink, error) {
		return c.provider.CreatePaymentLink(body)
	})
	if err != nil {
		c.logger.Warn("payos create link failed", zap.Int64("order_code", req.OrderCode), zap.Error(err))
		return nil, fmt.Errorf("%w: create payment link: %v", utils.ErrGatewayUnavailable, err)
	}
	return link, nil
}

func (c *payosClient) GetPaymentStatus(ctx context.Context, orderCode int64) (*PaymentStatus, error) {
	status, err := callWithTimeout(ctx, c.timeout, func() (*PaymentStatus, error) {
		return c.provider.GetPaymentLinkInformation(orderCode)
	})
	if err != nil {
		c.logger.Warn("payos get payment status failed", zap.Int64("order_code", orderCode), zap.Error(err))
		return nil, fmt.Errorf("%w: get payment status: %v", utils.ErrGatewayUnavailable, err)
	}
	return status, nil
}

func (c *payosClient) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*PaymentStatus, error) {
	status, err := callWithTimeout(ctx, c.timeout, func() (*PaymentStatus, error) {
		return c.provider.CancelPaymentLink(orderCode, reason)
	})
	if err != nil {
		c.logger.Warn("payos cancel link failed", zap.Int64("order_code", orderCode), zap.Error(err))
		return nil, fmt.Errorf("%w: cancel payment link: %v", utils.ErrGatewayUnavailable, err)
	}
	return status, nil
}

func (c *payosClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifySignature(payload, signature, c.checksumKey)
}

type webhookBody struct {
	Code      string       `json:"code"`
	Desc      string       `json:"desc"`
	Data      *webhookData `json:"data"`
	Signature string       `json:"signature"`
}

type webhookData struct {
	Code                   string  `json:"code"`
	Desc                   string  `json:"desc"`
	OrderCode              int64   `json:"orderCode"`
	Amount                 int64   `json:"amount"`
	Description            string  `json:"description"`
	AccountNumber          string  `json:"accountNumber"`
	Reference              string  `json:"reference"`
	TransactionDateTime    string  `json:"transactionDateTime"`
	PaymentLinkID          string  `json:"paymentLinkId"`
	CounterAccountBankID   *string `json:"counterAccountBankId"`
	CounterAccountBankName *string `json:"counterAccountBankName"`
	CounterAccountName     *string `json:"counterAccountName"`
	CounterAccountNumber   *string `json:"counterAccountNumber"`
	VirtualAccountName     *string `json:"virtualAccountName"`
	VirtualAccountNumber   *string `json:"virtualAccountNumber"`
}

func (c *payosClient) ParseWebhookPayload(payload []byte) (*WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook payload: %v", utils.ErrValidation, err)
	}
	if body.Data == nil || body.Data.OrderCode == 0 {
		return nil, fmt.Errorf("%w: webhook payload has no order code", utils.ErrValidation)
	}

	d := body.Data
	// Only data is covered by the signature, so the result code is taken from
	// there and an envelope that claims otherwise is rejected.
	if d.Code == "" {
		return nil, fmt.Errorf("%w: webhook data has no result code", utils.ErrValidation)
	}
	if body.Code != "" && body.Code != d.Code {
		return nil, fmt.Errorf("%w: envelope code %q does not match signed code %q", utils.ErrSignatureInvalid, body.Code, d.Code)
	}

	return &WebhookEvent{
		Code:                d.Code,
		Description:         d.Desc,
		Success:             d.Code == CodeSuccess,
		OrderCode:           d.OrderCode,
		Amount:              d.Amount,
		TransactionDateTime: d.TransactionDateTime,
		PaymentLinkID:       d.PaymentLinkID,
		Bank: BankMetadata{
			Reference:              d.Reference,
			AccountNumber:          d.AccountNumber,
			CounterAccountBankID:   deref(d.CounterAccountBankID),
			CounterAccountBankName: deref(d.CounterAccountBankName),
			CounterAccountName:     deref(d.CounterAccountName),
			CounterAccountNumber:   deref(d.CounterAccountNumber),
			VirtualAccountName:     deref(d.VirtualAccountName),
			VirtualAccountNumber:   deref(d.VirtualAccountNumber),
		},
		Signature: body.Signature,
	}, nil
}

// callWithTimeout bounds how long the caller waits on a blocking SDK call.
// The SDK takes neither a context nor an http.Client, so fn cannot be
// interrupted: on timeout it keeps running until the SDK returns, and its
// result lands in the buffered channel and is dropped. A timed-out create may
// still open a link at payOS; its URL is never handed out and it lapses at
// expiredAt.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
