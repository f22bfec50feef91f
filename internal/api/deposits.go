/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/nowpayments"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrProviderUnavailable is returned when no payment provider is configured
var ErrProviderUnavailable = errors.New("payment provider is not configured")

// RequestDeposit creates a payment with the provider and records a pending deposit for it
func (s *LedgerService) RequestDeposit(ctx context.Context, accountId string, req models.DepositRequest) (*models.DepositSummary, error) {
	payCurrency := strings.ToLower(strings.TrimSpace(req.PayCurrency))
	if err := s.validateDeposit(accountId, req.Amount, payCurrency); err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	orderId := fmt.Sprintf("DEP-%s-%d", accountId, time.Now().UnixMilli())

	zap.L().Info("Requesting deposit",
		zap.String("account_id", accountId),
		zap.String("order_id", orderId),
		zap.String("amount", req.Amount.String()),
		zap.String("pay_currency", payCurrency))

	start := time.Now()
	payment, err := s.provider.CreatePayment(ctx, nowpayments.PaymentRequest{
		PriceAmount:      req.Amount,
		PriceCurrency:    s.currency,
		PayCurrency:      payCurrency,
		OrderId:          orderId,
		OrderDescription: "Wallet deposit " + orderId,
	})
	s.metrics.ObserveProvider("create_payment", start, err)
	if err != nil {
		zap.L().Error("Payment provider rejected deposit",
			zap.String("order_id", orderId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	status := payment.PaymentStatus
	if status == "" {
		status = models.PaymentStatusWaiting
	}

	intent, entry, err := s.store.CreateDepositIntent(ctx, store.CreateDepositParams{
		IntentId:        string(payment.PaymentId),
		OrderId:         orderId,
		AccountId:       accountId,
		RequestedAmount: req.Amount,
		PriceCurrency:   s.currency,
		PayCurrency:     payCurrency,
		PayAddress:      payment.PayAddress,
		PayAmount:       payment.PayAmount,
		Status:          status,
		Description:     fmt.Sprintf("Deposit of %s %s paid in %s", req.Amount.String(), strings.ToUpper(s.currency), strings.ToUpper(payCurrency)),
	})
	if err != nil {
		// The provider payment exists without a local record; it will surface as unknown_intent if paid.
		zap.L().Error("Failed to record deposit intent",
			zap.String("order_id", orderId),
			zap.String("payment_id", string(payment.PaymentId)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	s.metrics.DepositCreated(payCurrency)
	s.events.Publish(ctx, entryEvent(models.EventDepositRequested, entry, entry.BalanceAfter))

	summary := depositSummary(intent, entry)
	return &summary, nil
}

func (s *LedgerService) validateDeposit(accountId string, amount decimal.Decimal, payCurrency string) error {
	problems := map[string]string{}
	if accountId == "" {
		problems["accountId"] = "required"
	}
	switch {
	case !amount.IsPositive():
		problems["amount"] = "must be positive"
	case !s.policy.HasValidScale(amount):
		problems["amount"] = fmt.Sprintf("must have at most %d decimal places", s.policy.Precision)
	case amount.LessThan(s.policy.MinimumDeposit):
		problems["amount"] = fmt.Sprintf("minimum deposit is %s", s.policy.MinimumDeposit.String())
	}
	if payCurrency == "" {
		problems["payCurrency"] = "required"
	}
	if len(problems) > 0 {
		return store.NewValidationError("invalid deposit request", problems)
	}
	return nil
}

// HandleNotification authenticates and applies one provider callback. Failures that
// are not the caller's fault are recorded for manual reconciliation and reported
// as handled so the provider stops retrying.
func (s *LedgerService) HandleNotification(ctx context.Context, body []byte, signature string) (*store.NotificationOutcome, error) {
	if err := nowpayments.VerifySignature(body, signature, s.ipnSecret); err != nil {
		zap.L().Warn("Rejected notification", zap.Error(err))
		s.metrics.NotificationProcessed("unknown", "rejected")
		return nil, err
	}

	ipn, err := nowpayments.ParseIPN(body)
	if err != nil {
		s.metrics.NotificationProcessed("unknown", "invalid")
		return nil, store.NewValidationError("invalid notification", map[string]string{"body": err.Error()})
	}
	paymentId := string(ipn.PaymentId)

	outcome, err := s.store.ApplyNotification(ctx, store.Notification{
		IntentId:     paymentId,
		Status:       ipn.PaymentStatus,
		ActuallyPaid: ipn.ActuallyPaid,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.metrics.NotificationProcessed(string(ipn.PaymentStatus), "unknown_intent")
		s.recordIssue(ctx, models.ReconciliationIssue{
			Reference: paymentId,
			Kind:      models.IssueUnknownIntent,
			Detail: fmt.Sprintf("notification %s for order %q with %s paid matches no deposit",
				ipn.PaymentStatus, ipn.OrderId, ipn.ActuallyPaid.String()),
		})
		return nil, err

	case store.IsValidation(err):
		s.metrics.NotificationProcessed(string(ipn.PaymentStatus), "invalid")
		return nil, err

	case err != nil:
		zap.L().Error("Failed to apply notification",
			zap.String("payment_id", paymentId),
			zap.String("payment_status", string(ipn.PaymentStatus)),
			zap.Error(err))
		s.metrics.NotificationProcessed(string(ipn.PaymentStatus), "error")
		s.recordIssue(ctx, models.ReconciliationIssue{
			Reference: paymentId,
			Kind:      models.IssueNotificationError,
			Detail:    fmt.Sprintf("notification %s could not be applied: %v", ipn.PaymentStatus, err),
		})
		return &store.NotificationOutcome{Result: store.NotificationFlagged}, nil
	}

	s.metrics.NotificationProcessed(string(ipn.PaymentStatus), string(outcome.Result))
	s.publishNotification(ctx, outcome)
	return outcome, nil
}

func (s *LedgerService) publishNotification(ctx context.Context, outcome *store.NotificationOutcome) {
	switch outcome.Result {
	case store.NotificationCredited:
		s.events.Publish(ctx, entryEvent(models.EventDepositCredited, outcome.Entry, outcome.Entry.BalanceAfter))
	case store.NotificationReversed:
		s.events.Publish(ctx, entryEvent(models.EventDepositReversed, outcome.Reverse, outcome.Reverse.BalanceAfter))
	case store.NotificationApplied:
		if outcome.Entry.Status != models.EntryStatusFailed {
			return
		}
		balance := outcome.Entry.BalanceAfter
		if account, err := s.store.GetAccount(ctx, outcome.Entry.AccountId); err == nil {
			balance = account.Balance
		}
		s.events.Publish(ctx, entryEvent(models.EventDepositFailed, outcome.Entry, balance))
	}
}

func (s *LedgerService) recordIssue(ctx context.Context, issue models.ReconciliationIssue) {
	if err := s.store.RecordIssue(ctx, issue); err != nil {
		zap.L().Error("Failed to record reconciliation issue",
			zap.String("kind", string(issue.Kind)),
			zap.String("reference", issue.Reference),
			zap.Error(err))
	}
}

// GetDepositByOrder returns the deposit and its ledger status for an order id
func (s *LedgerService) GetDepositByOrder(ctx context.Context, orderId string) (*models.DepositSummary, error) {
	if orderId == "" {
		return nil, store.NewValidationError("order id is required", nil)
	}
	intent, entry, err := s.store.GetDepositByOrderId(ctx, orderId)
	if err != nil {
		return nil, err
	}
	summary := depositSummary(intent, entry)
	return &summary, nil
}

func (s *LedgerService) ListDeposits(ctx context.Context, accountId string, status models.PaymentStatus, page models.Page) (models.PageResult[models.DepositSummary], error) {
	if status != "" && !status.Valid() {
		return models.PageResult[models.DepositSummary]{}, store.NewValidationError("invalid status filter",
			map[string]string{"status": string(status)})
	}

	intents, total, err := s.store.ListDeposits(ctx, store.ListDepositsParams{
		AccountId: accountId,
		Status:    status,
		Page:      page,
	})
	if err != nil {
		return models.PageResult[models.DepositSummary]{}, err
	}
	summaries := make([]models.DepositSummary, len(intents))
	for i := range intents {
		summaries[i] = depositSummary(&intents[i], nil)
	}
	return models.NewPageResult(summaries, total, page), nil
}

// SyncPaymentStatus asks the provider for the current state of one of the
// account's payments and applies it like a notification, so a missed
// callback can be recovered by polling.
func (s *LedgerService) SyncPaymentStatus(ctx context.Context, accountId, paymentId string) (*models.DepositSummary, error) {
	if paymentId == "" {
		return nil, store.NewValidationError("payment id is required", nil)
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}

	intent, _, err := s.store.GetDepositByIntentId(ctx, paymentId)
	if err != nil {
		return nil, err
	}
	if intent.AccountId != accountId {
		return nil, fmt.Errorf("%w: deposit %s", store.ErrNotFound, paymentId)
	}

	start := time.Now()
	payment, err := s.provider.GetPayment(ctx, paymentId)
	s.metrics.ObserveProvider("get_payment", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment status: %w", err)
	}
	if !payment.PaymentStatus.Valid() {
		return nil, &nowpayments.ProviderError{
			Op:      "get_payment",
			Message: fmt.Sprintf("unknown payment status %q", payment.PaymentStatus),
		}
	}

	outcome, err := s.store.ApplyNotification(ctx, store.Notification{
		IntentId:     paymentId,
		Status:       payment.PaymentStatus,
		ActuallyPaid: payment.ActuallyPaid,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Payment status synced",
		zap.String("payment_id", paymentId),
		zap.String("account_id", accountId),
		zap.String("payment_status", string(payment.PaymentStatus)),
		zap.String("result", string(outcome.Result)))

	s.metrics.NotificationProcessed(string(payment.PaymentStatus), string(outcome.Result))
	s.publishNotification(ctx, outcome)

	summary := depositSummary(outcome.Intent, outcome.Entry)
	return &summary, nil
}

func (s *LedgerService) Currencies(ctx context.Context) ([]string, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	start := time.Now()
	currencies, err := s.provider.Currencies(ctx)
	s.metrics.ObserveProvider("currencies", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list currencies: %w", err)
	}
	return currencies, nil
}

// MinAmount returns the provider minimum for paying in currency
func (s *LedgerService) MinAmount(ctx context.Context, currency string) (*nowpayments.MinAmount, error) {
	if currency == "" {
		return nil, store.NewValidationError("currency is required", nil)
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	start := time.Now()
	minimum, err := s.provider.MinAmount(ctx, strings.ToLower(currency), s.currency)
	s.metrics.ObserveProvider("min_amount", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get minimum amount: %w", err)
	}
	return minimum, nil
}

// Estimate converts an amount in the account currency to payCurrency
func (s *LedgerService) Estimate(ctx context.Context, amount decimal.Decimal, payCurrency string) (*nowpayments.Estimate, error) {
	problems := map[string]string{}
	if !amount.IsPositive() {
		problems["amount"] = "must be positive"
	}
	if payCurrency == "" {
		problems["currency"] = "required"
	}
	if len(problems) > 0 {
		return nil, store.NewValidationError("invalid estimate request", problems)
	}
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	start := time.Now()
	estimate, err := s.provider.Estimate(ctx, amount, s.currency, strings.ToLower(payCurrency))
	s.metrics.ObserveProvider("estimate", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate price: %w", err)
	}
	return estimate, nil
}

func depositSummary(intent *models.DepositIntent, entry *models.LedgerEntry) models.DepositSummary {
	summary := models.DepositSummary{
		OrderId:       intent.OrderId,
		PaymentId:     intent.IntentId,
		PayAddress:    intent.PayAddress,
		PayAmount:     intent.PayAmount,
		PayCurrency:   intent.PayCurrency,
		PriceAmount:   intent.RequestedAmount,
		PriceCurrency: intent.PriceCurrency,
		PaymentStatus: intent.Status,
		ActuallyPaid:  intent.ActuallyPaid,
		CreatedAt:     intent.CreatedAt,
	}
	if entry != nil {
		summary.EntryStatus = entry.Status
	}
	return summary
}
