package response_models

type CreatePaymentResponse struct {
	TransactionID    string `json:"transactionId"`
	GatewayOrderCode int64  `json:"gatewayOrderCode"`
	PaymentLink      string `json:"paymentLink"`
	QRCode           string `json:"qrCode"`
	Amount           int64  `json:"amount"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expiresAt"` // RFC3339, +07:00
}

type VerifyPaymentResponse struct {
	TransactionID    string `json:"transactionId"`
	GatewayOrderCode int64  `json:"gatewayOrderCode"`
	Status           string `json:"status"`
	GatewayStatus    string `json:"gatewayStatus"`
	AmountPaid       int64  `json:"amountPaid"`
	Changed          bool   `json:"changed"`
}

type CancelPaymentResponse struct {
	TransactionID    string   `json:"transactionId"`
	Status           string   `json:"status"`
	OrderCancelled   bool     `json:"orderCancelled"`
	AlreadyCancelled bool     `json:"alreadyCancelled"`
	StepFailures     []string `json:"stepFailures,omitempty"`
}

type BankInfoResponse struct {
	Reference              string `json:"reference,omitempty"`
	AccountNumber          string `json:"accountNumber,omitempty"`
	CounterAccountBankID   string `json:"counterAccountBankId,omitempty"`
	CounterAccountBankName string `json:"counterAccountBankName,omitempty"`
	CounterAccountName     string `json:"counterAccountName,omitempty"`
	CounterAccountNumber   string `json:"counterAccountNumber,omitempty"`
	VirtualAccountName     string `json:"virtualAccountName,omitempty"`
	VirtualAccountNumber   string `json:"virtualAccountNumber,omitempty"`
}

type TransactionResponse struct {
	ID                  string            `json:"id"`
	TransactionID       string            `json:"transactionId"`
	GatewayOrderCode    *int64            `json:"gatewayOrderCode,omitempty"`
	OrderID             string            `json:"orderId"`
	CustomerID          string            `json:"customerId"`
	PaymentMethod       string            `json:"paymentMethod"`
	Amount              int64             `json:"amount"`
	Currency            string            `json:"currency"`
	Status              string            `json:"status"`
	ResponseCode        string            `json:"responseCode,omitempty"`
	ResponseDescription string            `json:"responseDescription,omitempty"`
	PaymentLinkURL      string            `json:"paymentLinkUrl,omitempty"`
	QRCode              string            `json:"qrCode,omitempty"`
	Bank                *BankInfoResponse `json:"bank,omitempty"`
	RetryCount          int               `json:"retryCount"`
	ErrorMessage        string            `json:"errorMessage,omitempty"`
	CreatedAt           string            `json:"createdAt"`
	TransactionDateTime string            `json:"transactionDateTime,omitempty"`
	CompletedAt         string            `json:"completedAt,omitempty"`
	FailedAt            string            `json:"failedAt,omitempty"`
	CancelledAt         string            `json:"cancelledAt,omitempty"`
	WebhookReceivedAt   string            `json:"webhookReceivedAt,omitempty"`
}

type TransactionPage struct {
	Items    []TransactionResponse `json:"items"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	Total    int64                 `json:"total"`
}
