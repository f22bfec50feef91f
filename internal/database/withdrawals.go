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

// CreateWithdrawal holds the requested amount and records the pending withdrawal
func (s *Service) CreateWithdrawal(ctx context.Context, params store.CreateWithdrawalParams) (*store.WithdrawalResult, error) {
	destination, err := models.EncodeDestination(params.Destination)
	if err != nil {
		return nil, store.NewValidationError("invalid withdrawal details", map[string]string{"details": err.Error()})
	}

	var result *store.WithdrawalResult
	err = s.withAccount(ctx, params.AccountId, func(tx *sql.Tx, acct *accountState) error {
		if params.Amount.GreaterThan(acct.balance) {
			return &store.InsufficientBalanceError{Available: acct.balance, Requested: params.Amount}
		}

		before := acct.balance
		after := before.Sub(params.Amount)
		currency := params.Currency
		if currency == "" {
			currency = acct.currency
		}

		entry, err := s.insertEntry(ctx, tx, newEntryParams{
			AccountId:     params.AccountId,
			Kind:          models.EntryKindWithdrawal,
			Amount:        params.Amount,
			Currency:      currency,
			Status:        models.EntryStatusPending,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   params.Description,
			Reference:     params.Id,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		w := &models.WithdrawalRequest{
			Id:              params.Id,
			AccountId:       params.AccountId,
			RequestedAmount: params.Amount,
			Currency:        currency,
			Method:          params.Method,
			Destination:     params.Destination,
			Status:          models.WithdrawalStatusPending,
			ProcessingFee:   params.ProcessingFee,
			NetAmount:       params.NetAmount,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		_, err = tx.ExecContext(ctx, s.dialect.rebind(queryInsertWithdrawal),
			w.Id, w.AccountId, w.RequestedAmount.String(), w.Currency, string(w.Method), destination,
			string(w.Status), w.ProcessingFee.String(), w.NetAmount.String(), w.CreatedAt, w.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: withdrawal %s", store.ErrDuplicateTransaction, w.Id)
		}
		if err != nil {
			return fmt.Errorf("failed to insert withdrawal: %w", err)
		}

		if err := s.addJournalEntries(ctx, tx, entry.Id, params.AccountId, movementHold, params.Amount); err != nil {
			return err
		}

		acct.balance = after
		acct.lastEntry = entry.Id
		result = &store.WithdrawalResult{Withdrawal: w, Entry: entry, Balance: after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal hold placed",
		zap.String("withdrawal_id", params.Id),
		zap.String("account_id", params.AccountId),
		zap.String("method", string(params.Method)),
		zap.String("amount", params.Amount.String()),
		zap.String("fee", params.ProcessingFee.String()),
		zap.String("net_amount", params.NetAmount.String()),
		zap.String("new_balance", result.Balance.String()))

	return result, nil
}

func scanWithdrawal(row rowScanner) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var requestedStr, feeStr, netStr, destination string
	err := row.Scan(&w.Id, &w.AccountId, &requestedStr, &w.Currency, &w.Method, &destination, &w.Status,
		&feeStr, &netStr, &w.TransactionHash, &w.ExternalRef, &w.Notes,
		&w.CreatedAt, &w.ProcessedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.RequestedAmount, err = decimal.NewFromString(requestedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse requested amount '%s': %w", requestedStr, err)
	}
	w.ProcessingFee, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse processing fee '%s': %w", feeStr, err)
	}
	w.NetAmount, err = decimal.NewFromString(netStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse net amount '%s': %w", netStr, err)
	}
	w.Destination, err = models.DecodeDestination(w.Method, []byte(destination))
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) getWithdrawal(ctx context.Context, q rowQuerier, withdrawalId string) (*models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(q.QueryRowContext(ctx, s.dialect.rebind(queryGetWithdrawal), withdrawalId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, withdrawalId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal %s: %w", withdrawalId, err)
	}
	return w, nil
}

func (s *Service) GetWithdrawal(ctx context.Context, withdrawalId string) (*models.WithdrawalRequest, error) {
	return s.getWithdrawal(ctx, s.db, withdrawalId)
}

func (s *Service) withdrawalAccount(ctx context.Context, withdrawalId string) (string, error) {
	var accountId string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetWithdrawalAccount), withdrawalId).Scan(&accountId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, withdrawalId)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up withdrawal %s: %w", withdrawalId, err)
	}
	return accountId, nil
}

// withdrawalTransition describes one status change applied under the account lock
type withdrawalTransition struct {
	from            []models.WithdrawalStatus
	to              models.WithdrawalStatus
	entryStatus     models.EntryStatus // empty keeps the entry unchanged
	release         bool               // credit the held amount back
	settle          bool
	notes           string
	transactionHash string
	externalRef     string
	processed       bool
}

func (s *Service) transitionWithdrawal(ctx context.Context, withdrawalId, ownerId string, t withdrawalTransition) (*store.WithdrawalResult, error) {
	accountId, err := s.withdrawalAccount(ctx, withdrawalId)
	if err != nil {
		return nil, err
	}
	if ownerId != "" && ownerId != accountId {
		return nil, fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, withdrawalId)
	}

	var result *store.WithdrawalResult
	err = s.withAccount(ctx, accountId, func(tx *sql.Tx, acct *accountState) error {
		w, err := s.getWithdrawal(ctx, tx, withdrawalId)
		if err != nil {
			return err
		}

		allowed := false
		for _, from := range t.from {
			if w.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: withdrawal %s is %s", store.ErrInvalidState, withdrawalId, w.Status)
		}

		entry, err := s.getEntryByReference(ctx, tx, w.Id, models.EntryKindWithdrawal)
		if err != nil {
			return err
		}

		if t.release {
			before := acct.balance
			after := before.Add(w.RequestedAmount)
			release, err := s.insertEntry(ctx, tx, newEntryParams{
				AccountId:     w.AccountId,
				Kind:          models.EntryKindRelease,
				Amount:        w.RequestedAmount,
				Currency:      w.Currency,
				Status:        models.EntryStatusCompleted,
				BalanceBefore: before,
				BalanceAfter:  after,
				Description:   fmt.Sprintf("Withdrawal %s %s", w.Id, t.to),
				Reference:     w.Id,
			})
			if err != nil {
				return err
			}
			if err := s.addJournalEntries(ctx, tx, release.Id, w.AccountId, movementRelease, w.RequestedAmount); err != nil {
				return err
			}
			acct.balance = after
			acct.lastEntry = release.Id
		}
		if t.settle {
			if err := s.addJournalEntries(ctx, tx, entry.Id, w.AccountId, movementSettle, w.RequestedAmount); err != nil {
				return err
			}
		}

		if t.entryStatus != "" {
			if err := s.setEntryStatus(ctx, tx, entry, t.entryStatus); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		notes := w.Notes
		if t.notes != "" {
			notes = t.notes
		}
		txHash := w.TransactionHash
		if t.transactionHash != "" {
			txHash = t.transactionHash
		}
		externalRef := w.ExternalRef
		if t.externalRef != "" {
			externalRef = t.externalRef
		}
		processedAt := w.ProcessedAt
		if t.processed {
			processedAt = sql.NullTime{Time: now, Valid: true}
		}

		res, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateWithdrawalStatus),
			string(t.to), notes, txHash, externalRef, processedAt, now, w.Id, string(w.Status))
		if err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("withdrawal update failed - %w", store.ErrConcurrentModification)
		}

		w.Status = t.to
		w.Notes = notes
		w.TransactionHash = txHash
		w.ExternalRef = externalRef
		w.ProcessedAt = processedAt
		w.UpdatedAt = now
		result = &store.WithdrawalResult{Withdrawal: w, Entry: entry, Balance: acct.balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal status changed",
		zap.String("withdrawal_id", withdrawalId),
		zap.String("account_id", accountId),
		zap.String("status", string(t.to)),
		zap.Bool("released", t.release),
		zap.String("balance", result.Balance.String()))

	return result, nil
}

// CancelWithdrawal releases the hold of a pending withdrawal owned by accountId
func (s *Service) CancelWithdrawal(ctx context.Context, withdrawalId, accountId, notes string) (*store.WithdrawalResult, error) {
	if accountId == "" {
		return nil, store.NewValidationError("account id is required", nil)
	}
	return s.transitionWithdrawal(ctx, withdrawalId, accountId, withdrawalTransition{
		from:        []models.WithdrawalStatus{models.WithdrawalStatusPending},
		to:          models.WithdrawalStatusCancelled,
		entryStatus: models.EntryStatusCancelled,
		release:     true,
		notes:       notes,
		processed:   true,
	})
}

// MarkWithdrawalProcessing records that a payout has been handed to a payment rail
func (s *Service) MarkWithdrawalProcessing(ctx context.Context, withdrawalId, externalRef string) (*store.WithdrawalResult, error) {
	return s.transitionWithdrawal(ctx, withdrawalId, "", withdrawalTransition{
		from:        []models.WithdrawalStatus{models.WithdrawalStatusPending},
		to:          models.WithdrawalStatusProcessing,
		externalRef: externalRef,
	})
}

// FinalizeWithdrawal settles or fails a withdrawal that has not reached a terminal status
func (s *Service) FinalizeWithdrawal(ctx context.Context, params store.FinalizeWithdrawalParams) (*store.WithdrawalResult, error) {
	t := withdrawalTransition{
		from:            []models.WithdrawalStatus{models.WithdrawalStatusPending, models.WithdrawalStatusProcessing},
		to:              params.Outcome,
		notes:           params.Notes,
		transactionHash: params.TransactionHash,
		processed:       true,
	}

	switch params.Outcome {
	case models.WithdrawalStatusCompleted:
		t.entryStatus = models.EntryStatusCompleted
		t.settle = true
	case models.WithdrawalStatusFailed:
		t.entryStatus = models.EntryStatusFailed
		t.release = true
	default:
		return nil, store.NewValidationError("invalid outcome", map[string]string{
			"status": "must be completed or failed",
		})
	}

	return s.transitionWithdrawal(ctx, params.WithdrawalId, "", t)
}

func (s *Service) ListWithdrawals(ctx context.Context, params store.ListWithdrawalsParams) ([]models.WithdrawalRequest, int, error) {
	var (
		total int
		rows  *sql.Rows
		err   error
	)
	if params.Status == "" {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(queryCountWithdrawals), params.AccountId).Scan(&total)
		if err == nil {
			rows, err = s.db.QueryContext(ctx, s.dialect.rebind(queryListWithdrawals),
				params.AccountId, params.Page.Limit, params.Page.Offset())
		}
	} else {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(queryCountWithdrawalsByStatus),
			params.AccountId, string(params.Status)).Scan(&total)
		if err == nil {
			rows, err = s.db.QueryContext(ctx, s.dialect.rebind(queryListWithdrawalsByStatus),
				params.AccountId, string(params.Status), params.Page.Limit, params.Page.Offset())
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer closeRows(rows)

	var withdrawals []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return withdrawals, total, nil
}

// GetWithdrawalStats aggregates count and amount per status
func (s *Service) GetWithdrawalStats(ctx context.Context, accountId string) (*models.WithdrawalStats, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryWithdrawalAmountsByStatus), accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal stats: %w", err)
	}
	defer closeRows(rows)

	stats := &models.WithdrawalStats{
		ByStatus:       map[models.WithdrawalStatus]models.StatusTotal{},
		TotalWithdrawn: decimal.Zero,
	}
	for rows.Next() {
		var status models.WithdrawalStatus
		var amountStr string
		if err := rows.Scan(&status, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal stats: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}

		total := stats.ByStatus[status]
		total.Count++
		total.TotalAmount = total.TotalAmount.Add(amount)
		stats.ByStatus[status] = total

		if status == models.WithdrawalStatusCompleted {
			stats.TotalWithdrawn = stats.TotalWithdrawn.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return stats, nil
}
