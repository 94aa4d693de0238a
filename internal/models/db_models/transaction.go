package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TxnStatusPending    TransactionStatus = "PENDING"
	TxnStatusProcessing TransactionStatus = "PROCESSING"
	TxnStatusCompleted  TransactionStatus = "COMPLETED"
	TxnStatusFailed     TransactionStatus = "FAILED"
	TxnStatusCancelled  TransactionStatus = "CANCELLED"
	TxnStatusRefunded   TransactionStatus = "REFUNDED"
)

// OpenTransactionStatuses are the non-terminal statuses. At most one
// transaction per order may be in one of them.
var OpenTransactionStatuses = []TransactionStatus{TxnStatusPending, TxnStatusProcessing}

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxnStatusCompleted, TxnStatusFailed, TxnStatusCancelled, TxnStatusRefunded:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TxnStatusPending, TxnStatusProcessing, TxnStatusCompleted,
		TxnStatusFailed, TxnStatusCancelled, TxnStatusRefunded:
		return true
	}
	return false
}

const PaymentMethodPayOS = "payos"

// Transaction is one payment attempt for an order. Terminal transactions are
// kept as history and never deleted.
type Transaction struct {
	BaseModel
	TransactionID    string            `gorm:"size:40;uniqueIndex;not null"`
	GatewayOrderCode *int64            `gorm:"uniqueIndex"` // only gateway-backed attempts carry one
	OrderID          uuid.UUID         `gorm:"type:uuid;index;not null"`
	CustomerID       uuid.UUID         `gorm:"type:uuid;index;not null"`
	PaymentMethodID  string            `gorm:"size:32"`
	AmountMinor      int64             `gorm:"not null"` // VND has no minor unit; still integer
	Currency         string            `gorm:"size:3"`
	Status           TransactionStatus `gorm:"size:16;index;not null"`

	// Gateway fields
	ResponseCode           string `gorm:"size:16"`
	ResponseDescription    string
	PaymentLinkID          string `gorm:"size:64"`
	PaymentLinkURL         string
	QRCode                 string `gorm:"type:text"`
	Reference              string `gorm:"size:64"`
	AccountNumber          string `gorm:"size:64"`
	CounterAccountBankID   string `gorm:"size:32"`
	CounterAccountBankName string
	CounterAccountName     string
	CounterAccountNumber   string `gorm:"size:64"`
	VirtualAccountName     string
	VirtualAccountNumber   string `gorm:"size:64"`

	// Important timestamps (unix seconds)
	TransactionDateTime *int64
	CompletedAt         *int64
	FailedAt            *int64
	CancelledAt         *int64
	WebhookReceivedAt   *int64
	WebhookSignature    string `gorm:"size:128"`

	RetryCount   int
	ErrorMessage string

	Metadata datatypes.JSON
}

// BankDetails is the counter-account information the gateway reports on success.
type BankDetails struct {
	Reference              string
	AccountNumber          string
	CounterAccountBankID   string
	CounterAccountBankName string
	CounterAccountName     string
	CounterAccountNumber   string
	VirtualAccountName     string
	VirtualAccountNumber   string
}
