package nowpayments

import (
	"bytes"
	"encoding/json"
	"fmt"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// PaymentId is numeric on the wire but handled as an opaque string
type PaymentId string

func (id *PaymentId) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PaymentId(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid payment id %s: %w", string(data), err)
	}
	*id = PaymentId(n.String())
	return nil
}

type PaymentRequest struct {
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayCurrency      string          `json:"pay_currency"`
	OrderId          string          `json:"order_id"`
	OrderDescription string          `json:"order_description,omitempty"`
	IPNCallbackURL   string          `json:"ipn_callback_url,omitempty"`
}

type Payment struct {
	PaymentId     PaymentId            `json:"payment_id"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PayAddress    string               `json:"pay_address"`
	PriceAmount   decimal.Decimal      `json:"price_amount"`
	PriceCurrency string               `json:"price_currency"`
	PayAmount     decimal.Decimal      `json:"pay_amount"`
	PayCurrency   string               `json:"pay_currency"`
	ActuallyPaid  decimal.Decimal      `json:"actually_paid"`
	OrderId       string               `json:"order_id"`
}

type MinAmount struct {
	CurrencyFrom   string          `json:"currency_from"`
	CurrencyTo     string          `json:"currency_to"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	FiatEquivalent decimal.Decimal `json:"fiat_equivalent,omitempty"`
}

type Estimate struct {
	CurrencyFrom    string          `json:"currency_from"`
	AmountFrom      decimal.Decimal `json:"amount_from"`
	CurrencyTo      string          `json:"currency_to"`
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
}

// IPN is the body of an instant payment notification
type IPN struct {
	PaymentId     PaymentId            `json:"payment_id"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PayAddress    string               `json:"pay_address"`
	PriceAmount   decimal.Decimal      `json:"price_amount"`
	PriceCurrency string               `json:"price_currency"`
	PayAmount     decimal.Decimal      `json:"pay_amount"`
	PayCurrency   string               `json:"pay_currency"`
	ActuallyPaid  decimal.Decimal      `json:"actually_paid"`
	OrderId       string               `json:"order_id"`
}

// ParseIPN decodes a notification body. Call VerifySignature first.
func ParseIPN(body []byte) (*IPN, error) {
	var ipn IPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, fmt.Errorf("invalid notification body: %w", err)
	}
	if ipn.PaymentId == "" {
		return nil, fmt.Errorf("notification has no payment_id")
	}
	if ipn.PaymentStatus == "" {
		return nil, fmt.Errorf("notification has no payment_status")
	}
	return &ipn, nil
}
