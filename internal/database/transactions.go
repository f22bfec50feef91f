package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// newEntryParams contains the parameters for appending a ledger entry
type newEntryParams struct {
	AccountId     string
	Kind          models.EntryKind
	Amount        decimal.Decimal
	Currency      string
	Status        models.EntryStatus
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	Reference     string
}

// insertEntry appends a ledger entry inside the caller's transaction
func (s *Service) insertEntry(ctx context.Context, tx *sql.Tx, params newEntryParams) (*models.LedgerEntry, error) {
	now := time.Now().UTC()
	entry := &models.LedgerEntry{
		Id:            uuid.New().String(),
		AccountId:     params.AccountId,
		Kind:          params.Kind,
		Amount:        params.Amount,
		Currency:      params.Currency,
		Status:        params.Status,
		BalanceBefore: params.BalanceBefore,
		BalanceAfter:  params.BalanceAfter,
		Description:   params.Description,
		Reference:     params.Reference,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertEntry),
		entry.Id, entry.AccountId, string(entry.Kind), entry.Amount.String(), entry.Currency, string(entry.Status),
		entry.BalanceBefore.String(), entry.BalanceAfter.String(), entry.Description, entry.Reference,
		entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	zap.L().Info("Ledger entry recorded",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", entry.AccountId),
		zap.String("kind", string(entry.Kind)),
		zap.String("status", string(entry.Status)),
		zap.String("amount", entry.Amount.String()),
		zap.String("balance_before", entry.BalanceBefore.String()),
		zap.String("balance_after", entry.BalanceAfter.String()))

	return entry, nil
}

func (s *Service) setEntryStatus(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry, status models.EntryStatus) error {
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateEntryStatus), string(status), now, entry.Id); err != nil {
		return fmt.Errorf("failed to update ledger entry %s: %w", entry.Id, err)
	}
	entry.Status = status
	entry.UpdatedAt = now
	return nil
}

// setEntrySnapshot records the balance mutation on an existing entry at the moment it happens
func (s *Service) setEntrySnapshot(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry, status models.EntryStatus, before, after decimal.Decimal) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateEntrySnapshot),
		string(status), before.String(), after.String(), now, entry.Id)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry %s: %w", entry.Id, err)
	}
	entry.Status = status
	entry.BalanceBefore = before
	entry.BalanceAfter = after
	entry.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var amountStr, balanceBeforeStr, balanceAfterStr string
	err := row.Scan(&entry.Id, &entry.AccountId, &entry.Kind, &amountStr, &entry.Currency, &entry.Status,
		&balanceBeforeStr, &balanceAfterStr, &entry.Description, &entry.Reference,
		&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	entry.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	entry.BalanceBefore, err = decimal.NewFromString(balanceBeforeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", balanceBeforeStr, err)
	}
	entry.BalanceAfter, err = decimal.NewFromString(balanceAfterStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", balanceAfterStr, err)
	}
	return &entry, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getEntryByReference finds the entry correlated with a deposit order or withdrawal id
func (s *Service) getEntryByReference(ctx context.Context, q rowQuerier, reference string, kind models.EntryKind) (*models.LedgerEntry, error) {
	entry, err := scanEntry(q.QueryRowContext(ctx, s.dialect.rebind(queryGetEntryByReference), reference, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger entry for %s", store.ErrNotFound, reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry for %s: %w", reference, err)
	}
	return entry, nil
}

// ListEntries returns paginated ledger history for an account, newest first
func (s *Service) ListEntries(ctx context.Context, params store.ListEntriesParams) ([]models.LedgerEntry, int, error) {
	zap.L().Debug("Getting ledger history",
		zap.String("account_id", params.AccountId),
		zap.String("kind", string(params.Kind)),
		zap.Int("limit", params.Page.Limit),
		zap.Int("offset", params.Page.Offset()))

	var (
		total int
		rows  *sql.Rows
		err   error
	)
	if params.Kind == "" {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(queryCountEntries), params.AccountId).Scan(&total)
		if err == nil {
			rows, err = s.db.QueryContext(ctx, s.dialect.rebind(queryListEntries),
				params.AccountId, params.Page.Limit, params.Page.Offset())
		}
	} else {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(queryCountEntriesByKind), params.AccountId, string(params.Kind)).Scan(&total)
		if err == nil {
			rows, err = s.db.QueryContext(ctx, s.dialect.rebind(queryListEntriesByKind),
				params.AccountId, string(params.Kind), params.Page.Limit, params.Page.Offset())
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger row iteration", zap.Error(err))
		return nil, 0, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return entries, total, nil
}

type journalLine struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

type journalMovement string

const (
	movementCredit  journalMovement = "credit"  // deposit completed
	movementHold    journalMovement = "hold"    // withdrawal requested
	movementRelease journalMovement = "release" // withdrawal cancelled or failed
	movementSettle  journalMovement = "settle"  // withdrawal paid out
	movementReverse journalMovement = "reverse" // deposit refunded
)

// addJournalEntries creates double-entry bookkeeping rows for a balance movement
func (s *Service) addJournalEntries(ctx context.Context, tx *sql.Tx, entryId, accountId string, movement journalMovement, amount decimal.Decimal) error {
	wallet := fmt.Sprintf("%s_%s", accountId, s.currency)
	liability := fmt.Sprintf("user_deposits_%s", s.currency)
	holds := fmt.Sprintf("withdrawal_holds_%s", s.currency)

	var lines []journalLine
	switch movement {
	case movementCredit:
		// User wallet increases (debit); we owe the user this amount (credit)
		lines = []journalLine{
			{"user_wallet", wallet, amount, decimal.Zero},
			{"system_liability", liability, decimal.Zero, amount},
		}
	case movementHold:
		lines = []journalLine{
			{"user_wallet", wallet, decimal.Zero, amount},
			{"withdrawal_hold", holds, amount, decimal.Zero},
		}
	case movementRelease:
		lines = []journalLine{
			{"withdrawal_hold", holds, decimal.Zero, amount},
			{"user_wallet", wallet, amount, decimal.Zero},
		}
	case movementSettle:
		// Funds leave the platform; the liability to the user is extinguished
		lines = []journalLine{
			{"withdrawal_hold", holds, decimal.Zero, amount},
			{"system_liability", liability, amount, decimal.Zero},
		}
	case movementReverse:
		lines = []journalLine{
			{"user_wallet", wallet, decimal.Zero, amount},
			{"system_liability", liability, amount, decimal.Zero},
		}
	default:
		return fmt.Errorf("unknown journal movement %q", movement)
	}

	now := time.Now().UTC()
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertJournalEntry),
			uuid.New().String(), entryId, line.accountType, line.accountId,
			line.debitAmount.String(), line.creditAmount.String(), now)
		if err != nil {
			return fmt.Errorf("failed to add journal entry: %w", err)
		}
	}
	return nil
}
