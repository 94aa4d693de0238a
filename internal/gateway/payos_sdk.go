package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/payOSHQ/payos-lib-golang"
)

var errMissingCredentials = errors.New("missing payOS credentials")

// checkoutRequest mirrors payOS's create-link body; it is converted to the
// SDK's request type through JSON so only the wire names matter here.
type checkoutRequest struct {
	OrderCode   int64          `json:"orderCode"`
	Amount      int64          `json:"amount"`
	Description string         `json:"description"`
	Items       []checkoutItem `json:"items"`
	CancelURL   string         `json:"cancelUrl"`
	ReturnURL   string         `json:"returnUrl"`
	BuyerName   *string        `json:"buyerName,omitempty"`
	BuyerEmail  *string        `json:"buyerEmail,omitempty"`
	BuyerPhone  *string        `json:"buyerPhone,omitempty"`
	ExpiredAt   *int64         `json:"expiredAt,omitempty"`
}

type checkoutItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type checkoutResponse struct {
	PaymentLinkID string `json:"paymentLinkId"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
	Status        string `json:"status"`
}

type paymentLinkInfo struct {
	OrderCode          int64   `json:"orderCode"`
	Amount             int64   `json:"amount"`
	AmountPaid         int64   `json:"amountPaid"`
	Status             string  `json:"status"`
	CancellationReason *string `json:"cancellationReason"`
	Transactions       []struct {
		Reference              string  `json:"reference"`
		Amount                 int64   `json:"amount"`
		AccountNumber          string  `json:"accountNumber"`
		TransactionDateTime    string  `json:"transactionDateTime"`
		CounterAccountBankID   *string `json:"counterAccountBankId"`
		CounterAccountBankName *string `json:"counterAccountBankName"`
		CounterAccountName     *string `json:"counterAccountName"`
		CounterAccountNumber   *string `json:"counterAccountNumber"`
		VirtualAccountName     *string `json:"virtualAccountName"`
		VirtualAccountNumber   *string `json:"virtualAccountNumber"`
	} `json:"transactions"`
}

func (p paymentLinkInfo) toStatus() *PaymentStatus {
	status := &PaymentStatus{
		OrderCode:          p.OrderCode,
		Status:             p.Status,
		Amount:             p.Amount,
		AmountPaid:         p.AmountPaid,
		CancellationReason: deref(p.CancellationReason),
	}
	for _, t := range p.Transactions {
		status.Transactions = append(status.Transactions, GatewayTransaction{
			Reference:           t.Reference,
			Amount:              t.Amount,
			TransactionDateTime: t.TransactionDateTime,
			Bank: BankMetadata{
				Reference:              t.Reference,
				AccountNumber:          t.AccountNumber,
				CounterAccountBankID:   deref(t.CounterAccountBankID),
				CounterAccountBankName: deref(t.CounterAccountBankName),
				CounterAccountName:     deref(t.CounterAccountName),
				CounterAccountNumber:   deref(t.CounterAccountNumber),
				VirtualAccountName:     deref(t.VirtualAccountName),
				VirtualAccountNumber:   deref(t.VirtualAccountNumber),
			},
		})
	}
	return status
}

// sdkProvider calls payOS through payos-lib-golang. The SDK keeps its
// credentials in package state, set once here.
type sdkProvider struct{}

func newSDKProvider(cfg PayOSConfig) (provider, error) {
	if cfg.ClientID == "" || cfg.ApiKey == "" || cfg.ChecksumKey == "" {
		return nil, errMissingCredentials
	}
	if err := payos.Key(cfg.ClientID, cfg.ApiKey, cfg.ChecksumKey); err != nil {
		return nil, fmt.Errorf("payos client init: %w", err)
	}
	return sdkProvider{}, nil
}

func (sdkProvider) CreatePaymentLink(req checkoutRequest) (*PaymentLink, error) {
	var body payos.CheckoutRequestType
	if err := remarshal(req, &body); err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}

	resp, err := payos.CreatePaymentLink(body)
	if err != nil {
		return nil, err
	}

	var out checkoutResponse
	if err := remarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	return &PaymentLink{
		PaymentLinkID: out.PaymentLinkID,
		CheckoutURL:   out.CheckoutURL,
		QRCode:        out.QRCode,
		Status:        out.Status,
	}, nil
}

func (sdkProvider) GetPaymentLinkInformation(orderCode int64) (*PaymentStatus, error) {
	resp, err := payos.GetPaymentLinkInformation(strconv.FormatInt(orderCode, 10))
	if err != nil {
		return nil, err
	}
	var info paymentLinkInfo
	if err := remarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("read payment link: %w", err)
	}
	return info.toStatus(), nil
}

func (sdkProvider) CancelPaymentLink(orderCode int64, reason string) (*PaymentStatus, error) {
	resp, err := payos.CancelPaymentLink(strconv.FormatInt(orderCode, 10), &reason)
	if err != nil {
		return nil, err
	}
	var info paymentLinkInfo
	if err := remarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("read payment link: %w", err)
	}
	return info.toStatus(), nil
}

func remarshal(in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type unconfiguredProvider struct{}

func (unconfiguredProvider) CreatePaymentLink(checkoutRequest) (*PaymentLink, error) {
	return nil, errMissingCredentials
}

func (unconfiguredProvider) GetPaymentLinkInformation(int64) (*PaymentStatus, error) {
	return nil, errMissingCredentials
}

func (unconfiguredProvider) CancelPaymentLink(int64, string) (*PaymentStatus, error) {
	return nil, errMissingCredentials
}
