package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// accountState is the account row as read inside an account transaction.
// Callbacks change balance and lastEntry; the version is bumped on commit.
type accountState struct {
	userId    string
	currency  string
	balance   decimal.Decimal
	lastEntry string
	version   int64
}

type accountTxFunc func(tx *sql.Tx, acct *accountState) error

// withAccount runs fn in one transaction scoped to the account and commits
// the new balance with a compare-and-swap on the account version. The
// whole unit is re-run when another transaction won the race.
func (s *Service) withAccount(ctx context.Context, accountId string, fn accountTxFunc) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.runAccountTx(ctx, accountId, fn)
		if !errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
		zap.L().Warn("Concurrent account modification, retrying",
			zap.String("account_id", accountId),
			zap.Int("attempt", attempt))
	}
	return err
}

func (s *Service) runAccountTx(ctx context.Context, accountId string, fn accountTxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Warn("Failed to roll back transaction", zap.Error(err))
		}
	}()

	account, err := s.loadAccount(ctx, tx, accountId)
	if err != nil {
		return err
	}
	acct := &accountState{
		userId:    account.UserId,
		currency:  account.Currency,
		balance:   account.Balance,
		lastEntry: account.LastEntry,
		version:   account.Version,
	}

	if err := fn(tx, acct); err != nil {
		return err
	}

	if acct.balance.IsNegative() {
		return fmt.Errorf("refusing to commit negative balance %s for account %s", acct.balance.String(), accountId)
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateAccount),
		acct.balance.String(), acct.lastEntry, time.Now().UTC(), accountId, acct.version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadAccount returns the account row, creating it with a zero balance on first use
func (s *Service) loadAccount(ctx context.Context, q queryRower, accountId string) (*models.Account, error) {
	if accountId == "" {
		return nil, store.NewValidationError("account id is required", nil)
	}

	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, s.dialect.rebind(queryEnsureAccount), accountId, s.currency, now, now); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	var account models.Account
	var balanceStr string
	err := q.QueryRowContext(ctx, s.dialect.rebind(queryGetAccount), accountId).
		Scan(&account.UserId, &account.Currency, &balanceStr, &account.LastEntry, &account.Version,
			&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	return &account, nil
}

// GetAccount returns the account for a user, creating it lazily
func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	zap.L().Debug("Getting account", zap.String("account_id", accountId))

	account, err := s.loadAccount(ctx, s.db, accountId)
	if err != nil {
		zap.L().Error("Failed to load account", zap.String("account_id", accountId), zap.Error(err))
		return nil, err
	}

	zap.L().Debug("Retrieved account",
		zap.String("account_id", accountId),
		zap.String("balance", account.Balance.String()),
		zap.Int64("version", account.Version))
	return account, nil
}

// ListAccounts returns up to limit accounts ordered by user id
func (s *Service) ListAccounts(ctx context.Context, limit int) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryListAccounts), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		var balanceStr string
		if err := rows.Scan(&account.UserId, &account.Currency, &balanceStr, &account.LastEntry, &account.Version,
			&account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		account.Balance, err = decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// signedAmount is the effect an entry had on the balance given its kind and status
func signedAmount(kind models.EntryKind, status models.EntryStatus, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case models.EntryKindDeposit:
		// A reversed deposit keeps its credit; the reversal entry carries the debit.
		if status == models.EntryStatusCompleted || status == models.EntryStatusReversed {
			return amount
		}
		return decimal.Zero
	case models.EntryKindWithdrawal:
		// The hold is taken when the entry is created, whatever happens later.
		return amount.Neg()
	case models.EntryKindReversal:
		return amount.Neg()
	case models.EntryKindRelease:
		return amount
	}
	return decimal.Zero
}

// ReconcileAccount verifies that the stored balance matches the ledger
func (s *Service) ReconcileAccount(ctx context.Context, accountId string) (*store.ReconcileResult, error) {
	zap.L().Info("Reconciling balance", zap.String("account_id", accountId))

	account, err := s.GetAccount(ctx, accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryReconcileEntries), accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}
	defer closeRows(rows)

	calculated := decimal.Zero
	for rows.Next() {
		var kind models.EntryKind
		var status models.EntryStatus
		var amountStr string
		if err := rows.Scan(&kind, &status, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		calculated = calculated.Add(signedAmount(kind, status, amount))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	result := &store.ReconcileResult{
		AccountId:  accountId,
		Stored:     account.Balance,
		Calculated: calculated,
	}

	if !result.Consistent() {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.String("current_balance", account.Balance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", account.Balance.Sub(calculated).String()))
		return result, nil
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.String("balance", account.Balance.String()))
	return result, nil
}
