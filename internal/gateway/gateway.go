// Package gateway wraps the payOS payment-link API behind a typed client.
package gateway

import (
	"context"
	"fmt"
	"unicode/utf8"

	"payflow/pkg/utils"
)

// Amount bounds accepted by the gateway, in VND.
const (
	MinAmount            int64 = 1_000
	MaxAmount            int64 = 50_000_000
	MaxDescriptionLength       = 25

	// CodeSuccess is the payOS result code for a successful payment.
	CodeSuccess = "00"
)

// Payment-link statuses reported by GetPaymentStatus.
const (
	LinkStatusPending    = "PENDING"
	LinkStatusProcessing = "PROCESSING"
	LinkStatusPaid       = "PAID"
	LinkStatusCancelled  = "CANCELLED"
	LinkStatusExpired    = "EXPIRED"
)

type Client interface {
	CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (*PaymentLink, error)
	GetPaymentStatus(ctx context.Context, orderCode int64) (*PaymentStatus, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) (*PaymentStatus, error)

	// VerifyWebhookSignature never errors; any malformed input is a mismatch.
	VerifyWebhookSignature(payload []byte, signature string) bool
	ParseWebhookPayload(payload []byte) (*WebhookEvent, error)
}

type BuyerInfo struct {
	Name  string
	Email string
	Phone string
}

type CreateLinkRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	ItemName    string
	Buyer       BuyerInfo
	ReturnURL   string
	CancelURL   string
	ExpiresAt   int64 // unix seconds; 0 leaves the gateway default
}

type PaymentLink struct {
	PaymentLinkID string
	CheckoutURL   string
	QRCode        string
	Status        string
}

type GatewayTransaction struct {
	Reference           string
	Amount              int64
	TransactionDateTime string
	Bank                BankMetadata
}

type PaymentStatus struct {
	OrderCode          int64
	Status             string
	Amount             int64
	AmountPaid         int64
	Transactions       []GatewayTransaction
	CancellationReason string
}

func (s *PaymentStatus) IsPaid() bool { return s.Status == LinkStatusPaid }

func (s *PaymentStatus) IsClosed() bool {
	return s.Status == LinkStatusCancelled || s.Status == LinkStatusExpired
}

type BankMetadata struct {
	Reference              string
	AccountNumber          string
	CounterAccountBankID   string
	CounterAccountBankName string
	CounterAccountName     string
	CounterAccountNumber   string
	VirtualAccountName     string
	VirtualAccountNumber   string
}

type WebhookEvent struct {
	Code                string
	Description         string
	Success             bool
	OrderCode           int64
	Amount              int64
	TransactionDateTime string
	PaymentLinkID       string
	Bank                BankMetadata
	Signature           string
}

func ValidateAmount(amount int64) error {
	if amount < MinAmount || amount > MaxAmount {
		return fmt.Errorf("%w: %d not in [%d, %d]", utils.ErrInvalidAmount, amount, MinAmount, MaxAmount)
	}
	return nil
}

// TruncateDescription cuts s to the gateway's description limit without
// splitting a UTF-8 sequence.
func TruncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxDescriptionLength])
}
