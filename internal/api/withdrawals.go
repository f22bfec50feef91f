package api

import (
	"context"
	"fmt"
	"time"

	"wallet-ledger-go/internal/fees"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

const cancelledByUser = "Cancelled by user"

// RequestWithdrawal validates the request and holds the amount against a new pending withdrawal
func (s *LedgerService) RequestWithdrawal(ctx context.Context, accountId string, req models.WithdrawalCreate) (*models.WithdrawalSummary, error) {
	problems := map[string]string{}
	if accountId == "" {
		problems["accountId"] = "required"
	}
	if !req.Method.Valid() {
		problems["method"] = "must be bank or crypto"
	}
	switch {
	case !req.Amount.IsPositive():
		problems["amount"] = "must be positive"
	case !s.policy.HasValidScale(req.Amount):
		problems["amount"] = fmt.Sprintf("must have at most %d decimal places", s.policy.Precision)
	case req.Amount.LessThan(s.policy.MinimumWithdrawal):
		problems["amount"] = fmt.Sprintf("minimum withdrawal is %s", s.policy.MinimumWithdrawal.String())
	}
	if len(problems) > 0 {
		return nil, store.NewValidationError("invalid withdrawal request", problems)
	}

	account, err := s.store.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(account.Balance) {
		return nil, &store.InsufficientBalanceError{Available: account.Balance, Requested: req.Amount}
	}

	destination, err := models.DecodeDestination(req.Method, req.Details)
	if err != nil {
		return nil, store.NewValidationError("invalid withdrawal details", map[string]string{"details": err.Error()})
	}
	if missing := destination.Validate(); len(missing) > 0 {
		return nil, store.NewValidationError("incomplete withdrawal details", missing)
	}

	quote := s.policy.Quote(req.Amount, req.Method)
	id := withdrawalId(accountId, time.Now())

	zap.L().Info("Requesting withdrawal",
		zap.String("withdrawal_id", id),
		zap.String("account_id", accountId),
		zap.String("method", string(req.Method)),
		zap.String("amount", req.Amount.String()),
		zap.String("fee", quote.Fee.String()))

	result, err := s.store.CreateWithdrawal(ctx, store.CreateWithdrawalParams{
		Id:            id,
		AccountId:     accountId,
		Amount:        req.Amount,
		Currency:      account.Currency,
		Method:        req.Method,
		Destination:   destination,
		ProcessingFee: quote.Fee,
		NetAmount:     quote.Net,
		Description:   fmt.Sprintf("%s withdrawal %s", req.Method, id),
	})
	if err != nil {
		return nil, err
	}

	s.withdrawalCommitted(ctx, models.EventWithdrawalRequested, result)
	summary := withdrawalSummary(result.Withdrawal)
	return &summary, nil
}

// withdrawalId is WD-<last six of the account id>-<unix millis>
func withdrawalId(accountId string, now time.Time) string {
	suffix := accountId
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("WD-%s-%d", suffix, now.UnixMilli())
}

func (s *LedgerService) CancelWithdrawal(ctx context.Context, withdrawalId, accountId string) (*models.WithdrawalSummary, error) {
	result, err := s.store.CancelWithdrawal(ctx, withdrawalId, accountId, cancelledByUser)
	if err != nil {
		return nil, err
	}
	s.withdrawalCommitted(ctx, models.EventWithdrawalCancelled, result)
	summary := withdrawalSummary(result.Withdrawal)
	return &summary, nil
}

// FinalizeWithdrawal records the operator outcome of a payout
func (s *LedgerService) FinalizeWithdrawal(ctx context.Context, withdrawalId string, req models.WithdrawalProcess) (*models.WithdrawalSummary, error) {
	var eventType models.EventType
	switch req.Status {
	case models.WithdrawalStatusCompleted:
		eventType = models.EventWithdrawalCompleted
	case models.WithdrawalStatusFailed:
		eventType = models.EventWithdrawalFailed
	default:
		return nil, store.NewValidationError("invalid outcome", map[string]string{"status": "must be completed or failed"})
	}

	result, err := s.store.FinalizeWithdrawal(ctx, store.FinalizeWithdrawalParams{
		WithdrawalId:    withdrawalId,
		Outcome:         req.Status,
		Notes:           req.Notes,
		TransactionHash: req.TransactionHash,
	})
	if err != nil {
		return nil, err
	}
	s.withdrawalCommitted(ctx, eventType, result)
	summary := withdrawalSummary(result.Withdrawal)
	return &summary, nil
}

func (s *LedgerService) MarkWithdrawalProcessing(ctx context.Context, withdrawalId, externalRef string) (*models.WithdrawalSummary, error) {
	result, err := s.store.MarkWithdrawalProcessing(ctx, withdrawalId, externalRef)
	if err != nil {
		return nil, err
	}
	s.withdrawalCommitted(ctx, models.EventWithdrawalProcessing, result)
	summary := withdrawalSummary(result.Withdrawal)
	return &summary, nil
}

func (s *LedgerService) withdrawalCommitted(ctx context.Context, eventType models.EventType, result *store.WithdrawalResult) {
	w := result.Withdrawal
	s.metrics.WithdrawalTransition(string(w.Method), string(w.Status))

	event := entryEvent(eventType, result.Entry, result.Balance)
	event.Reference = w.Id
	event.OccurredAt = w.UpdatedAt
	s.events.Publish(ctx, event)
}

// GetWithdrawal returns one of the account's withdrawals; other accounts' ids are not found
func (s *LedgerService) GetWithdrawal(ctx context.Context, withdrawalId, accountId string) (*models.WithdrawalSummary, error) {
	w, err := s.store.GetWithdrawal(ctx, withdrawalId)
	if err != nil {
		return nil, err
	}
	if w.AccountId != accountId {
		return nil, fmt.Errorf("%w: withdrawal %s", store.ErrNotFound, withdrawalId)
	}
	summary := withdrawalSummary(w)
	return &summary, nil
}

// GetWithdrawalById returns any withdrawal, for operator tooling
func (s *LedgerService) GetWithdrawalById(ctx context.Context, withdrawalId string) (*models.WithdrawalRequest, error) {
	return s.store.GetWithdrawal(ctx, withdrawalId)
}

func (s *LedgerService) ListWithdrawals(ctx context.Context, accountId string, status models.WithdrawalStatus, page models.Page) (models.PageResult[models.WithdrawalSummary], error) {
	if status != "" && !status.Valid() {
		return models.PageResult[models.WithdrawalSummary]{}, store.NewValidationError("invalid status filter",
			map[string]string{"status": string(status)})
	}

	withdrawals, total, err := s.store.ListWithdrawals(ctx, store.ListWithdrawalsParams{
		AccountId: accountId,
		Status:    status,
		Page:      page,
	})
	if err != nil {
		return models.PageResult[models.WithdrawalSummary]{}, err
	}

	summaries := make([]models.WithdrawalSummary, len(withdrawals))
	for i := range withdrawals {
		summaries[i] = withdrawalSummary(&withdrawals[i])
	}
	return models.NewPageResult(summaries, total, page), nil
}

func (s *LedgerService) WithdrawalStats(ctx context.Context, accountId string) (*models.WithdrawalStats, error) {
	return s.store.GetWithdrawalStats(ctx, accountId)
}

func withdrawalSummary(w *models.WithdrawalRequest) models.WithdrawalSummary {
	summary := models.WithdrawalSummary{
		Id:                      w.Id,
		Amount:                  w.RequestedAmount,
		Currency:                w.Currency,
		Method:                  w.Method,
		Details:                 w.Destination,
		Status:                  w.Status,
		ProcessingFee:           w.ProcessingFee,
		NetAmount:               w.NetAmount,
		TransactionHash:         w.TransactionHash,
		Notes:                   w.Notes,
		EstimatedProcessingTime: fees.EstimatedProcessingTime(w.Method),
		CreatedAt:               w.CreatedAt,
	}
	if w.ProcessedAt.Valid {
		processedAt := w.ProcessedAt.Time
		summary.ProcessedAt = &processedAt
	}
	return summary
}
