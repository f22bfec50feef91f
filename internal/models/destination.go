package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type WithdrawalMethod string

const (
	WithdrawalMethodBank   WithdrawalMethod = "bank"
	WithdrawalMethodCrypto WithdrawalMethod = "crypto"
)

func (m WithdrawalMethod) Valid() bool {
	return m == WithdrawalMethodBank || m == WithdrawalMethodCrypto
}

const (
	MinWalletAddressLength = 26
	MaxWalletAddressLength = 62
)

// Destination is where a withdrawal pays out to: *BankDetails or *CryptoDetails
type Destination interface {
	Method() WithdrawalMethod
	// Validate returns a reason per offending field, empty when complete
	Validate() map[string]string
}

type BankDetails struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	SwiftCode     string `json:"swiftCode,omitempty"`
}

func (d *BankDetails) Method() WithdrawalMethod { return WithdrawalMethodBank }

func (d *BankDetails) Validate() map[string]string {
	problems := map[string]string{}
	if strings.TrimSpace(d.AccountName) == "" {
		problems["accountName"] = "required"
	}
	if strings.TrimSpace(d.AccountNumber) == "" {
		problems["accountNumber"] = "required"
	}
	if strings.TrimSpace(d.BankName) == "" {
		problems["bankName"] = "required"
	}
	return problems
}

type CryptoDetails struct {
	WalletAddress string `json:"walletAddress"`
	Currency      string `json:"currency"`
	Network       string `json:"network"`
}

func (d *CryptoDetails) Method() WithdrawalMethod { return WithdrawalMethodCrypto }

func (d *CryptoDetails) Validate() map[string]string {
	problems := map[string]string{}
	address := strings.TrimSpace(d.WalletAddress)
	switch {
	case address == "":
		problems["walletAddress"] = "required"
	case len(address) < MinWalletAddressLength || len(address) > MaxWalletAddressLength:
		problems["walletAddress"] = fmt.Sprintf("must be between %d and %d characters",
			MinWalletAddressLength, MaxWalletAddressLength)
	}
	if strings.TrimSpace(d.Currency) == "" {
		problems["currency"] = "required"
	}
	if strings.TrimSpace(d.Network) == "" {
		problems["network"] = "required"
	}
	return problems
}

// DecodeDestination parses raw details into the variant selected by method
func DecodeDestination(method WithdrawalMethod, raw []byte) (Destination, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var dest Destination
	switch method {
	case WithdrawalMethodBank:
		dest = &BankDetails{}
	case WithdrawalMethodCrypto:
		dest = &CryptoDetails{}
	default:
		return nil, fmt.Errorf("unknown withdrawal method %q", method)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return nil, fmt.Errorf("unable to decode %s details: %w", method, err)
	}
	return dest, nil
}

func EncodeDestination(dest Destination) (string, error) {
	if dest == nil {
		return "", fmt.Errorf("destination is nil")
	}
	data, err := json.Marshal(dest)
	if err != nil {
		return "", fmt.Errorf("unable to encode %s details: %w", dest.Method(), err)
	}
	return string(data), nil
}
