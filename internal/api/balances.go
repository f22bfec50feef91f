package api

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

func (s *LedgerService) GetBalance(ctx context.Context, accountId string) (*models.BalanceResponse, error) {
	account, err := s.store.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}
	return &models.BalanceResponse{
		Balance:   account.Balance,
		Currency:  account.Currency,
		UpdatedAt: account.UpdatedAt,
	}, nil
}

// GetTransactionHistory returns paged ledger entries, newest first, optionally of one kind
func (s *LedgerService) GetTransactionHistory(ctx context.Context, accountId string, kind models.EntryKind, page models.Page) (models.PageResult[models.TransactionRecord], error) {
	switch kind {
	case "", models.EntryKindDeposit, models.EntryKindWithdrawal, models.EntryKindReversal, models.EntryKindRelease:
	default:
		return models.PageResult[models.TransactionRecord]{}, store.NewValidationError("invalid type filter",
			map[string]string{"type": string(kind)})
	}

	entries, total, err := s.store.ListEntries(ctx, store.ListEntriesParams{
		AccountId: accountId,
		Kind:      kind,
		Page:      page,
	})
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("account_id", accountId),
			zap.Error(err))
		return models.PageResult[models.TransactionRecord]{}, err
	}

	records := make([]models.TransactionRecord, len(entries))
	for i, entry := range entries {
		records[i] = models.TransactionRecord{
			Id:            entry.Id,
			Type:          entry.Kind,
			Amount:        entry.Amount,
			Currency:      entry.Currency,
			Status:        entry.Status,
			BalanceBefore: entry.BalanceBefore,
			BalanceAfter:  entry.BalanceAfter,
			Description:   entry.Description,
			Reference:     entry.Reference,
			CreatedAt:     entry.CreatedAt,
		}
	}
	return models.NewPageResult(records, total, page), nil
}

// Reconcile compares the stored balance with the sum of completed ledger movements
func (s *LedgerService) Reconcile(ctx context.Context, accountId string) (*store.ReconcileResult, error) {
	result, err := s.store.ReconcileAccount(ctx, accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile account %s: %w", accountId, err)
	}
	if !result.Consistent() {
		zap.L().Warn("Balance does not match ledger",
			zap.String("account_id", accountId),
			zap.String("stored", result.Stored.String()),
			zap.String("calculated", result.Calculated.String()))
	}
	return result, nil
}

func (s *LedgerService) ListOpenIssues(ctx context.Context, limit int) ([]models.ReconciliationIssue, error) {
	issues, err := s.store.ListOpenIssues(ctx, limit)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []models.ReconciliationIssue{}
	}
	return issues, nil
}
