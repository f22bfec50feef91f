package fees

import (
	"fmt"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	DefaultBankFeeRate       = decimal.RequireFromString("0.01")
	DefaultCryptoFeeRate     = decimal.RequireFromString("0.02")
	DefaultMinimumWithdrawal = decimal.NewFromInt(20)
	DefaultMinimumDeposit    = decimal.NewFromInt(10)
)

const DefaultPrecision int32 = 2

// Policy is the fee schedule and the amount limits for money movements
type Policy struct {
	BankFeeRate       decimal.Decimal
	CryptoFeeRate     decimal.Decimal
	MinimumWithdrawal decimal.Decimal
	MinimumDeposit    decimal.Decimal
	Precision         int32
}

type Quote struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
	Fee    decimal.Decimal
	Net    decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		BankFeeRate:       DefaultBankFeeRate,
		CryptoFeeRate:     DefaultCryptoFeeRate,
		MinimumWithdrawal: DefaultMinimumWithdrawal,
		MinimumDeposit:    DefaultMinimumDeposit,
		Precision:         DefaultPrecision,
	}
}

// FromConfig builds a policy from configured values as given. Defaults are
// applied by the config loader, so a zero rate means no fee.
func FromConfig(cfg models.PolicyConfig) (Policy, error) {
	p := Policy{
		BankFeeRate:       cfg.BankFeeRate,
		CryptoFeeRate:     cfg.CryptoFeeRate,
		MinimumWithdrawal: cfg.MinimumWithdrawal,
		MinimumDeposit:    cfg.MinimumDeposit,
		Precision:         cfg.Precision,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{"bank fee rate": p.BankFeeRate, "crypto fee rate": p.CryptoFeeRate} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("%s must be in [0, 1), got %s", name, rate.String())
		}
	}
	if !p.MinimumWithdrawal.IsPositive() {
		return fmt.Errorf("minimum withdrawal must be positive, got %s", p.MinimumWithdrawal.String())
	}
	if !p.MinimumDeposit.IsPositive() {
		return fmt.Errorf("minimum deposit must be positive, got %s", p.MinimumDeposit.String())
	}
	if p.Precision < 0 || p.Precision > 8 {
		return fmt.Errorf("precision must be between 0 and 8, got %d", p.Precision)
	}
	return nil
}

func (p Policy) FeeRate(method models.WithdrawalMethod) decimal.Decimal {
	if method == models.WithdrawalMethodCrypto {
		return p.CryptoFeeRate
	}
	return p.BankFeeRate
}

// Quote computes the processing fee rounded to currency precision and the net payout
func (p Policy) Quote(amount decimal.Decimal, method models.WithdrawalMethod) Quote {
	rate := p.FeeRate(method)
	fee := amount.Mul(rate).Round(p.Precision)
	return Quote{
		Amount: amount,
		Rate:   rate,
		Fee:    fee,
		Net:    amount.Sub(fee),
	}
}

// HasValidScale reports whether amount carries no more decimals than the currency allows
func (p Policy) HasValidScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(p.Precision))
}

// EstimatedProcessingTime is the payout time shown to the user
func EstimatedProcessingTime(method models.WithdrawalMethod) string {
	if method == models.WithdrawalMethodBank {
		return "3-5 business days"
	}
	return "24-48 hours"
}
