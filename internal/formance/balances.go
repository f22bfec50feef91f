package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UserBalance returns the mirrored balance of users:{accountId} for a currency.
func (m *Mirror) UserBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	zap.L().Debug("Getting mirrored balance from Formance",
		zap.String("account_id", accountId), zap.String("currency", currency))

	vols, err := m.accountVolumes(ctx, "users:"+accountId)
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(currency)); bal != nil {
		return bigIntToDecimal(bal, currency), nil
	}
	return decimal.Zero, nil
}

// PendingWithdrawals returns the amount currently held on the pending withdrawals account.
func (m *Mirror) PendingWithdrawals(ctx context.Context, currency string) (decimal.Decimal, error) {
	vols, err := m.accountVolumes(ctx, pendingWithdrawals)
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(currency)); bal != nil {
		return bigIntToDecimal(bal, currency), nil
	}
	return decimal.Zero, nil
}

func (m *Mirror) accountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := m.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  m.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a minor-unit amount back to a decimal.
func bigIntToDecimal(raw *big.Int, currency string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(currency)))
}

// assetSymbol extracts the symbol from a Formance asset like "USD/2".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
