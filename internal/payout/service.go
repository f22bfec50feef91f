package payout

import (
	"context"
	"fmt"
	"strings"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/prime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PrimeClient is the Prime surface a payout needs
type PrimeClient interface {
	FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error)
	FindTradingWallet(ctx context.Context, portfolioId, symbol string) (*models.Wallet, error)
	CreatePayout(ctx context.Context, params prime.PayoutParams) (*models.PrimePayout, error)
}

// Ledger is the withdrawal lifecycle the payout drives
type Ledger interface {
	GetWithdrawalById(ctx context.Context, withdrawalId string) (*models.WithdrawalRequest, error)
	MarkWithdrawalProcessing(ctx context.Context, withdrawalId, externalRef string) (*models.WithdrawalSummary, error)
	FinalizeWithdrawal(ctx context.Context, withdrawalId string, req models.WithdrawalProcess) (*models.WithdrawalSummary, error)
}

// Service pays out pending crypto withdrawals through Coinbase Prime
type Service struct {
	ledger Ledger
	prime  PrimeClient
	assets []common.AssetConfig
}

func NewService(ledger Ledger, primeClient PrimeClient, assets []common.AssetConfig) *Service {
	return &Service{ledger: ledger, prime: primeClient, assets: assets}
}

// IdempotencyKey is stable per withdrawal so a retried payout never pays twice
func IdempotencyKey(withdrawalId string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(withdrawalId)).String()
}

// supported reports whether the symbol and network pair is listed in the assets file
func (s *Service) supported(symbol, network string) bool {
	for _, a := range s.assets {
		if strings.EqualFold(a.Symbol, symbol) && strings.EqualFold(a.Network, network) {
			return true
		}
	}
	return false
}

// Pay sends the net amount of a pending crypto withdrawal. The withdrawal is
// marked processing first; a rejected payout finalizes it as failed, which
// returns the hold to the account.
func (s *Service) Pay(ctx context.Context, withdrawalId string) (*models.PrimePayout, error) {
	w, err := s.ledger.GetWithdrawalById(ctx, withdrawalId)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WithdrawalStatusPending {
		return nil, fmt.Errorf("withdrawal %s is %s, only pending withdrawals can be paid out", w.Id, w.Status)
	}
	dest, ok := w.Destination.(*models.CryptoDetails)
	if !ok {
		return nil, fmt.Errorf("withdrawal %s is a %s withdrawal, not crypto", w.Id, w.Method)
	}
	if !s.supported(dest.Currency, dest.Network) {
		return nil, fmt.Errorf("asset %s on %s is not configured for payouts", dest.Currency, dest.Network)
	}

	portfolio, err := s.prime.FindDefaultPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	wallet, err := s.prime.FindTradingWallet(ctx, portfolio.Id, dest.Currency)
	if err != nil {
		return nil, err
	}

	key := IdempotencyKey(w.Id)
	if _, err := s.ledger.MarkWithdrawalProcessing(ctx, w.Id, key); err != nil {
		return nil, fmt.Errorf("failed to mark withdrawal processing: %w", err)
	}

	payout, err := s.prime.CreatePayout(ctx, prime.PayoutParams{
		PortfolioId:        portfolio.Id,
		WalletId:           wallet.Id,
		DestinationAddress: dest.WalletAddress,
		Amount:             w.NetAmount.String(),
		Symbol:             dest.Currency,
		Network:            dest.Network,
		IdempotencyKey:     key,
	})
	if err != nil {
		zap.L().Error("Payout rejected, releasing hold",
			zap.String("withdrawal_id", w.Id),
			zap.Error(err))
		if _, ferr := s.ledger.FinalizeWithdrawal(ctx, w.Id, models.WithdrawalProcess{
			Status: models.WithdrawalStatusFailed,
			Notes:  fmt.Sprintf("Prime payout failed: %v", err),
		}); ferr != nil {
			return nil, fmt.Errorf("payout failed (%v) and the withdrawal could not be failed: %w", err, ferr)
		}
		return nil, fmt.Errorf("payout failed: %w", err)
	}

	zap.L().Info("Withdrawal paid out",
		zap.String("withdrawal_id", w.Id),
		zap.String("activity_id", payout.ActivityId),
		zap.String("amount", payout.Amount))
	return payout, nil
}
