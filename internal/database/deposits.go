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

// CreateDepositIntent persists a provider payment together with its pending ledger entry
func (s *Service) CreateDepositIntent(ctx context.Context, params store.CreateDepositParams) (*models.DepositIntent, *models.LedgerEntry, error) {
	var (
		intent *models.DepositIntent
		entry  *models.LedgerEntry
	)

	err := s.withAccount(ctx, params.AccountId, func(tx *sql.Tx, acct *accountState) error {
		now := time.Now().UTC()
		intent = &models.DepositIntent{
			IntentId:        params.IntentId,
			OrderId:         params.OrderId,
			AccountId:       params.AccountId,
			RequestedAmount: params.RequestedAmount,
			PriceCurrency:   params.PriceCurrency,
			PayCurrency:     params.PayCurrency,
			PayAddress:      params.PayAddress,
			PayAmount:       params.PayAmount,
			Status:          params.Status,
			ActuallyPaid:    decimal.Zero,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if intent.Status == "" {
			intent.Status = models.PaymentStatusWaiting
		}

		_, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertDepositIntent),
			intent.IntentId, intent.OrderId, intent.AccountId, intent.RequestedAmount.String(),
			intent.PriceCurrency, intent.PayCurrency, intent.PayAddress, intent.PayAmount.String(),
			string(intent.Status), intent.CreatedAt, intent.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: deposit intent %s", store.ErrDuplicateTransaction, intent.IntentId)
		}
		if err != nil {
			return fmt.Errorf("failed to insert deposit intent: %w", err)
		}

		// No balance mutation yet: the snapshot is the current balance on both sides
		entry, err = s.insertEntry(ctx, tx, newEntryParams{
			AccountId:     params.AccountId,
			Kind:          models.EntryKindDeposit,
			Amount:        params.RequestedAmount,
			Currency:      acct.currency,
			Status:        models.EntryStatusPending,
			BalanceBefore: acct.balance,
			BalanceAfter:  acct.balance,
			Description:   params.Description,
			Reference:     params.OrderId,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Deposit intent created",
		zap.String("account_id", params.AccountId),
		zap.String("intent_id", intent.IntentId),
		zap.String("order_id", intent.OrderId),
		zap.String("amount", intent.RequestedAmount.String()),
		zap.String("pay_currency", intent.PayCurrency))

	return intent, entry, nil
}

func scanDepositIntent(row rowScanner) (*models.DepositIntent, error) {
	var intent models.DepositIntent
	var requestedStr, payAmountStr, actuallyPaidStr string
	err := row.Scan(&intent.IntentId, &intent.OrderId, &intent.AccountId, &requestedStr,
		&intent.PriceCurrency, &intent.PayCurrency, &intent.PayAddress, &payAmountStr,
		&intent.Status, &actuallyPaidStr, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return nil, err
	}

	intent.RequestedAmount, err = decimal.NewFromString(requestedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse requested amount '%s': %w", requestedStr, err)
	}
	intent.PayAmount, err = decimal.NewFromString(payAmountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pay amount '%s': %w", payAmountStr, err)
	}
	intent.ActuallyPaid, err = decimal.NewFromString(actuallyPaidStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse actually paid '%s': %w", actuallyPaidStr, err)
	}
	return &intent, nil
}

func (s *Service) getDepositIntent(ctx context.Context, q rowQuerier, query, key string) (*models.DepositIntent, error) {
	intent, err := scanDepositIntent(q.QueryRowContext(ctx, s.dialect.rebind(query), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: deposit %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit %s: %w", key, err)
	}
	return intent, nil
}

// GetDepositByOrderId returns the intent and its correlated ledger entry
func (s *Service) GetDepositByOrderId(ctx context.Context, orderId string) (*models.DepositIntent, *models.LedgerEntry, error) {
	intent, err := s.getDepositIntent(ctx, s.db, queryGetDepositByOrder, orderId)
	if err != nil {
		return nil, nil, err
	}
	entry, err := s.getEntryByReference(ctx, s.db, intent.OrderId, models.EntryKindDeposit)
	if err != nil {
		return nil, nil, err
	}
	return intent, entry, nil
}

// GetDepositByIntentId returns the intent for a provider payment id and its ledger entry
func (s *Service) GetDepositByIntentId(ctx context.Context, intentId string) (*models.DepositIntent, *models.LedgerEntry, error) {
	intent, err := s.getDepositIntent(ctx, s.db, queryGetDepositByIntent, intentId)
	if err != nil {
		return nil, nil, err
	}
	entry, err := s.getEntryByReference(ctx, s.db, intent.OrderId, models.EntryKindDeposit)
	if err != nil {
		return nil, nil, err
	}
	return intent, entry, nil
}

func (s *Service) ListDeposits(ctx context.Context, params store.ListDepositsParams) ([]models.DepositIntent, int, error) {
	var (
		total int
		rows  *sql.Rows
		err   error
	)
	if params.Status == "" {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(queryCountDeposits), params.AccountId).Scan(&total)
		if err == nil {
			rows, err = s.db.QueryContext(ctx, s.dialect.rebind(queryListDeposits),
				params.AccountId, params.Page.Limit, params.Page.Offset())
		}
	} else {
		err = s.db.QueryRowContext(ctx, s.dialect.rebind(queryCountDepositsByStatus),
			params.AccountId, string(params.Status)).Scan(&total)
		if err == nil {
			rows, err = s.db.QueryContext(ctx, s.dialect.rebind(queryListDepositsByStatus),
				params.AccountId, string(params.Status), params.Page.Limit, params.Page.Offset())
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer closeRows(rows)

	var intents []models.DepositIntent
	for rows.Next() {
		intent, err := scanDepositIntent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan deposit: %w", err)
		}
		intents = append(intents, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating deposit rows: %w", err)
	}
	return intents, total, nil
}

// ApplyNotification moves a deposit through the provider's lifecycle. The
// intent, its ledger entry and the balance change commit together, and an
// entry that already completed only reacts to a refund.
func (s *Service) ApplyNotification(ctx context.Context, n store.Notification) (*store.NotificationOutcome, error) {
	if !n.Status.Valid() {
		return nil, store.NewValidationError("unknown payment status", map[string]string{"payment_status": string(n.Status)})
	}

	var accountId string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetDepositAccount), n.IntentId).Scan(&accountId)
	if errors.Is(err, sql.ErrNoRows) {
		zap.L().Warn("Notification for unknown deposit intent", zap.String("intent_id", n.IntentId))
		return nil, fmt.Errorf("%w: deposit intent %s", store.ErrNotFound, n.IntentId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up deposit intent: %w", err)
	}

	var outcome *store.NotificationOutcome
	err = s.withAccount(ctx, accountId, func(tx *sql.Tx, acct *accountState) error {
		intent, err := s.getDepositIntent(ctx, tx, queryGetDepositByIntent, n.IntentId)
		if err != nil {
			return err
		}
		entry, err := s.getEntryByReference(ctx, tx, intent.OrderId, models.EntryKindDeposit)
		if err != nil {
			return err
		}

		outcome, err = s.transitionDeposit(ctx, tx, acct, intent, entry, n)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Deposit notification processed",
		zap.String("intent_id", n.IntentId),
		zap.String("account_id", accountId),
		zap.String("payment_status", string(n.Status)),
		zap.String("actually_paid", n.ActuallyPaid.String()),
		zap.String("result", string(outcome.Result)),
		zap.String("entry_status", string(outcome.Entry.Status)))

	return outcome, nil
}

func (s *Service) transitionDeposit(ctx context.Context, tx *sql.Tx, acct *accountState, intent *models.DepositIntent, entry *models.LedgerEntry, n store.Notification) (*store.NotificationOutcome, error) {
	outcome := &store.NotificationOutcome{Result: store.NotificationApplied, Intent: intent, Entry: entry}

	switch {
	case entry.Status == models.EntryStatusReversed:
		outcome.Result = store.NotificationIgnored
		return outcome, nil

	case entry.Status == models.EntryStatusCompleted && n.Status != models.PaymentStatusRefunded:
		outcome.Result = store.NotificationIgnored
		return outcome, nil

	case entry.Status == models.EntryStatusCompleted && intent.Status == models.PaymentStatusRefunded:
		// Refund already flagged for manual reconciliation
		outcome.Result = store.NotificationIgnored
		return outcome, nil

	case entry.Status == models.EntryStatusFailed:
		outcome.Result = store.NotificationIgnored
		if n.Status == models.PaymentStatusFinished {
			open, err := s.hasOpenIssue(ctx, tx, intent.OrderId, models.IssueLatePaymentAfterFailure)
			if err != nil {
				return nil, err
			}
			if open {
				// Redelivery of a payment already queued for reconciliation
				return outcome, nil
			}
			zap.L().Warn("Payment finished after the deposit failed",
				zap.String("intent_id", intent.IntentId),
				zap.String("order_id", intent.OrderId))
			if err := s.insertIssue(ctx, tx, models.ReconciliationIssue{
				AccountId: intent.AccountId,
				Reference: intent.OrderId,
				Kind:      models.IssueLatePaymentAfterFailure,
				Detail: fmt.Sprintf("payment %s finished with %s paid after the deposit was marked %s",
					intent.IntentId, n.ActuallyPaid.String(), intent.Status),
			}); err != nil {
				return nil, err
			}
			outcome.Result = store.NotificationFlagged
		}
		return outcome, nil
	}

	switch n.Status {
	case models.PaymentStatusFinished:
		before := acct.balance
		after := before.Add(intent.RequestedAmount)
		if err := s.setEntrySnapshot(ctx, tx, entry, models.EntryStatusCompleted, before, after); err != nil {
			return nil, err
		}
		if err := s.addJournalEntries(ctx, tx, entry.Id, intent.AccountId, movementCredit, intent.RequestedAmount); err != nil {
			return nil, err
		}
		acct.balance = after
		acct.lastEntry = entry.Id
		outcome.Result = store.NotificationCredited

	case models.PaymentStatusFailed, models.PaymentStatusExpired:
		if err := s.setEntryStatus(ctx, tx, entry, models.EntryStatusFailed); err != nil {
			return nil, err
		}

	case models.PaymentStatusPartiallyPaid:
		if err := s.setEntryStatus(ctx, tx, entry, models.EntryStatusPartial); err != nil {
			return nil, err
		}

	case models.PaymentStatusRefunded:
		if entry.Status != models.EntryStatusCompleted {
			if err := s.setEntryStatus(ctx, tx, entry, models.EntryStatusFailed); err != nil {
				return nil, err
			}
			break
		}

		if acct.balance.LessThan(intent.RequestedAmount) {
			zap.L().Warn("Insufficient balance to reverse refunded deposit",
				zap.String("intent_id", intent.IntentId),
				zap.String("account_id", intent.AccountId),
				zap.String("balance", acct.balance.String()),
				zap.String("amount", intent.RequestedAmount.String()))
			if err := s.insertIssue(ctx, tx, models.ReconciliationIssue{
				AccountId: intent.AccountId,
				Reference: intent.OrderId,
				Kind:      models.IssueRefundInsufficientBalance,
				Detail: fmt.Sprintf("refund of %s requires reversing %s but balance is %s",
					intent.IntentId, intent.RequestedAmount.String(), acct.balance.String()),
			}); err != nil {
				return nil, err
			}
			outcome.Result = store.NotificationFlagged
			break
		}

		before := acct.balance
		after := before.Sub(intent.RequestedAmount)
		reversal, err := s.insertEntry(ctx, tx, newEntryParams{
			AccountId:     intent.AccountId,
			Kind:          models.EntryKindReversal,
			Amount:        intent.RequestedAmount,
			Currency:      entry.Currency,
			Status:        models.EntryStatusCompleted,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   fmt.Sprintf("Refund of deposit %s", intent.OrderId),
			Reference:     intent.OrderId,
		})
		if err != nil {
			return nil, err
		}
		if err := s.setEntryStatus(ctx, tx, entry, models.EntryStatusReversed); err != nil {
			return nil, err
		}
		if err := s.addJournalEntries(ctx, tx, reversal.Id, intent.AccountId, movementReverse, intent.RequestedAmount); err != nil {
			return nil, err
		}
		acct.balance = after
		acct.lastEntry = reversal.Id
		outcome.Reverse = reversal
		outcome.Result = store.NotificationReversed

	default:
		// waiting, confirming, confirmed, sending: the intent mirrors the provider, the entry stays pending
	}

	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateDepositStatus),
		string(n.Status), n.ActuallyPaid.String(), now, intent.IntentId)
	if err != nil {
		return nil, fmt.Errorf("failed to update deposit intent: %w", err)
	}
	intent.Status = n.Status
	intent.ActuallyPaid = n.ActuallyPaid
	intent.UpdatedAt = now

	return outcome, nil
}

// hasOpenIssue reports whether an unresolved issue of kind already exists for reference
func (s *Service) hasOpenIssue(ctx context.Context, q rowQuerier, reference string, kind models.IssueKind) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, s.dialect.rebind(queryCountOpenIssues), reference, string(kind)).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check open reconciliation issues: %w", err)
	}
	return count > 0, nil
}

func (s *Service) insertIssue(ctx context.Context, q queryRower, issue models.ReconciliationIssue) error {
	if issue.Id == "" {
		issue.Id = uuid.New().String()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, s.dialect.rebind(queryInsertIssue),
		issue.Id, issue.AccountId, issue.Reference, string(issue.Kind), issue.Detail, issue.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record reconciliation issue: %w", err)
	}

	zap.L().Warn("Reconciliation issue recorded",
		zap.String("issue_id", issue.Id),
		zap.String("account_id", issue.AccountId),
		zap.String("reference", issue.Reference),
		zap.String("kind", string(issue.Kind)))
	return nil
}
