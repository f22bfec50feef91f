package database

import (
	"context"
	"errors"
	"testing"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func createTestDeposit(t *testing.T, service *Service, intentId, orderId string, amount decimal.Decimal) {
	t.Helper()
	intent, entry, err := service.CreateDepositIntent(context.Background(), store.CreateDepositParams{
		IntentId:        intentId,
		OrderId:         orderId,
		AccountId:       "user1",
		RequestedAmount: amount,
		PriceCurrency:   "usd",
		PayCurrency:     "btc",
		PayAddress:      "bc1qtestaddress",
		PayAmount:       decimal.RequireFromString("0.0015"),
	})
	if err != nil {
		t.Fatalf("CreateDepositIntent failed: %v", err)
	}
	if intent.Status != models.PaymentStatusWaiting {
		t.Errorf("Expected intent status waiting, got %s", intent.Status)
	}
	if entry.Status != models.EntryStatusPending {
		t.Errorf("Expected entry status pending, got %s", entry.Status)
	}
	if entry.Reference != orderId {
		t.Errorf("Expected entry reference %s, got %s", orderId, entry.Reference)
	}
}

func notify(t *testing.T, service *Service, intentId string, status models.PaymentStatus, paid decimal.Decimal) *store.NotificationOutcome {
	t.Helper()
	outcome, err := service.ApplyNotification(context.Background(), store.Notification{
		IntentId:     intentId,
		Status:       status,
		ActuallyPaid: paid,
	})
	if err != nil {
		t.Fatalf("ApplyNotification(%s) failed: %v", status, err)
	}
	return outcome
}

func balanceOf(t *testing.T, service *Service, accountId string) decimal.Decimal {
	t.Helper()
	account, err := service.GetAccount(context.Background(), accountId)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	return account.Balance
}

func TestCreateDepositIntent_NoBalanceChange(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(100))

	if balance := balanceOf(t, service, "user1"); !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}

	intent, entry, err := service.GetDepositByOrderId(context.Background(), "DEP-user1-1")
	if err != nil {
		t.Fatalf("GetDepositByOrderId failed: %v", err)
	}
	if intent.IntentId != "pay-1" {
		t.Errorf("Expected intent pay-1, got %s", intent.IntentId)
	}
	if !intent.PayAmount.Equal(decimal.RequireFromString("0.0015")) {
		t.Errorf("Expected pay amount 0.0015, got %s", intent.PayAmount.String())
	}
	if entry.Kind != models.EntryKindDeposit {
		t.Errorf("Expected kind deposit, got %s", entry.Kind)
	}
}

func TestCreateDepositIntent_Duplicate(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(100))

	_, _, err := service.CreateDepositIntent(context.Background(), store.CreateDepositParams{
		IntentId:        "pay-1",
		OrderId:         "DEP-user1-2",
		AccountId:       "user1",
		RequestedAmount: decimal.NewFromInt(100),
		PriceCurrency:   "usd",
		PayCurrency:     "btc",
	})
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestApplyNotification_FinishedCredits(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)

	outcome := notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
	if outcome.Result != store.NotificationCredited {
		t.Errorf("Expected result credited, got %s", outcome.Result)
	}
	if outcome.Entry.Status != models.EntryStatusCompleted {
		t.Errorf("Expected entry status completed, got %s", outcome.Entry.Status)
	}
	if !outcome.Entry.BalanceBefore.IsZero() {
		t.Errorf("Expected balance before 0, got %s", outcome.Entry.BalanceBefore.String())
	}
	if !outcome.Entry.BalanceAfter.Equal(amount) {
		t.Errorf("Expected balance after %s, got %s", amount.String(), outcome.Entry.BalanceAfter.String())
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), balance.String())
	}

	var journalRows int
	if err := service.db.QueryRow("SELECT COUNT(*) FROM journal_entries WHERE entry_id = ?", outcome.Entry.Id).Scan(&journalRows); err != nil {
		t.Fatalf("Failed to count journal entries: %v", err)
	}
	if journalRows != 2 {
		t.Errorf("Expected 2 journal entries, got %d", journalRows)
	}
}

func TestApplyNotification_DuplicateIsIgnored(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)

	notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
	outcome := notify(t, service, "pay-1", models.PaymentStatusFinished, amount)

	if outcome.Result != store.NotificationIgnored {
		t.Errorf("Expected result ignored, got %s", outcome.Result)
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(amount) {
		t.Errorf("Expected balance %s after duplicate, got %s", amount.String(), balance.String())
	}
}

func TestApplyNotification_ProgressKeepsEntryPending(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(100))

	for _, status := range []models.PaymentStatus{
		models.PaymentStatusConfirming,
		models.PaymentStatusConfirmed,
		models.PaymentStatusSending,
	} {
		outcome := notify(t, service, "pay-1", status, decimal.Zero)
		if outcome.Result != store.NotificationApplied {
			t.Errorf("%s: expected result applied, got %s", status, outcome.Result)
		}
		if outcome.Entry.Status != models.EntryStatusPending {
			t.Errorf("%s: expected entry pending, got %s", status, outcome.Entry.Status)
		}
		if outcome.Intent.Status != status {
			t.Errorf("Expected intent status %s, got %s", status, outcome.Intent.Status)
		}
	}
}

func TestApplyNotification_FailedAndExpired(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(100))
	createTestDeposit(t, service, "pay-2", "DEP-user1-2", decimal.NewFromInt(100))

	if outcome := notify(t, service, "pay-1", models.PaymentStatusFailed, decimal.Zero); outcome.Entry.Status != models.EntryStatusFailed {
		t.Errorf("Expected entry failed, got %s", outcome.Entry.Status)
	}
	if outcome := notify(t, service, "pay-2", models.PaymentStatusExpired, decimal.Zero); outcome.Entry.Status != models.EntryStatusFailed {
		t.Errorf("Expected entry failed, got %s", outcome.Entry.Status)
	}
	if balance := balanceOf(t, service, "user1"); !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}
}

func TestApplyNotification_LateFinishAfterFailureIsFlagged(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)
	notify(t, service, "pay-1", models.PaymentStatusExpired, decimal.Zero)

	outcome := notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
	if outcome.Result != store.NotificationFlagged {
		t.Errorf("Expected result flagged, got %s", outcome.Result)
	}
	if balance := balanceOf(t, service, "user1"); !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}

	issues, err := service.ListOpenIssues(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListOpenIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("Expected 1 issue, got %d", len(issues))
	}
	if issues[0].Kind != models.IssueLatePaymentAfterFailure {
		t.Errorf("Expected issue kind %s, got %s", models.IssueLatePaymentAfterFailure, issues[0].Kind)
	}
	if issues[0].Reference != "DEP-user1-1" {
		t.Errorf("Expected reference DEP-user1-1, got %s", issues[0].Reference)
	}
}

func TestApplyNotification_LateFinishRedeliveryFlagsOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)
	notify(t, service, "pay-1", models.PaymentStatusFailed, decimal.Zero)

	first := notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
	if first.Result != store.NotificationFlagged {
		t.Errorf("Expected first delivery flagged, got %s", first.Result)
	}
	for i := 0; i < 2; i++ {
		outcome := notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
		if outcome.Result != store.NotificationIgnored {
			t.Errorf("Expected redelivery %d ignored, got %s", i+1, outcome.Result)
		}
	}

	issues, err := service.ListOpenIssues(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListOpenIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("Expected 1 open issue after redeliveries, got %d", len(issues))
	}
	if balance := balanceOf(t, service, "user1"); !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}
}

func TestApplyNotification_PartiallyPaidThenFinished(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)

	outcome := notify(t, service, "pay-1", models.PaymentStatusPartiallyPaid, decimal.NewFromInt(40))
	if outcome.Entry.Status != models.EntryStatusPartial {
		t.Errorf("Expected entry partial, got %s", outcome.Entry.Status)
	}
	if !outcome.Intent.ActuallyPaid.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected actually paid 40, got %s", outcome.Intent.ActuallyPaid.String())
	}
	if balance := balanceOf(t, service, "user1"); !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}

	outcome = notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
	if outcome.Result != store.NotificationCredited {
		t.Errorf("Expected result credited, got %s", outcome.Result)
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), balance.String())
	}
}

func TestApplyNotification_RefundReverses(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)
	notify(t, service, "pay-1", models.PaymentStatusFinished, amount)

	outcome := notify(t, service, "pay-1", models.PaymentStatusRefunded, amount)
	if outcome.Result != store.NotificationReversed {
		t.Errorf("Expected result reversed, got %s", outcome.Result)
	}
	if outcome.Entry.Status != models.EntryStatusReversed {
		t.Errorf("Expected entry reversed, got %s", outcome.Entry.Status)
	}
	if outcome.Reverse == nil || outcome.Reverse.Kind != models.EntryKindReversal {
		t.Fatalf("Expected a reversal entry, got %+v", outcome.Reverse)
	}
	if !outcome.Reverse.BalanceAfter.IsZero() {
		t.Errorf("Expected reversal balance after 0, got %s", outcome.Reverse.BalanceAfter.String())
	}
	if balance := balanceOf(t, service, "user1"); !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}

	// A second refund delivery changes nothing
	outcome = notify(t, service, "pay-1", models.PaymentStatusRefunded, amount)
	if outcome.Result != store.NotificationIgnored {
		t.Errorf("Expected result ignored, got %s", outcome.Result)
	}
}

func TestApplyNotification_RefundWithInsufficientBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.NewFromInt(100)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)
	notify(t, service, "pay-1", models.PaymentStatusFinished, amount)
	createTestWithdrawal(t, service, "WD-000001-1", "user1", decimal.NewFromInt(80))

	outcome := notify(t, service, "pay-1", models.PaymentStatusRefunded, amount)
	if outcome.Result != store.NotificationFlagged {
		t.Errorf("Expected result flagged, got %s", outcome.Result)
	}
	if outcome.Entry.Status != models.EntryStatusCompleted {
		t.Errorf("Expected entry to stay completed, got %s", outcome.Entry.Status)
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected balance 20, got %s", balance.String())
	}

	issues, err := service.ListOpenIssues(ctx, 0)
	if err != nil {
		t.Fatalf("ListOpenIssues failed: %v", err)
	}
	if len(issues) != 1 || issues[0].Kind != models.IssueRefundInsufficientBalance {
		t.Errorf("Expected one %s issue, got %+v", models.IssueRefundInsufficientBalance, issues)
	}

	// Redelivery does not record the issue twice
	notify(t, service, "pay-1", models.PaymentStatusRefunded, amount)
	issues, err = service.ListOpenIssues(ctx, 0)
	if err != nil {
		t.Fatalf("ListOpenIssues failed: %v", err)
	}
	if len(issues) != 1 {
		t.Errorf("Expected 1 issue after redelivery, got %d", len(issues))
	}
}

func TestApplyNotification_UnknownIntent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.ApplyNotification(context.Background(), store.Notification{
		IntentId: "missing",
		Status:   models.PaymentStatusFinished,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestApplyNotification_UnknownStatus(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(100))

	_, err := service.ApplyNotification(context.Background(), store.Notification{
		IntentId: "pay-1",
		Status:   models.PaymentStatus("paid_twice"),
	})
	if !store.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestListDeposits(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(10))
	createTestDeposit(t, service, "pay-2", "DEP-user1-2", decimal.NewFromInt(20))
	createTestDeposit(t, service, "pay-3", "DEP-user1-3", decimal.NewFromInt(30))

	intents, total, err := service.ListDeposits(context.Background(), store.ListDepositsParams{
		AccountId: "user1",
		Page:      models.Page{Page: 0, Limit: 2},
	})
	if err != nil {
		t.Fatalf("ListDeposits failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	if len(intents) != 2 {
		t.Errorf("Expected 2 intents, got %d", len(intents))
	}

	intents, _, err = service.ListDeposits(context.Background(), store.ListDepositsParams{
		AccountId: "user2",
		Page:      models.Page{Page: 0, Limit: 10},
	})
	if err != nil {
		t.Fatalf("ListDeposits failed: %v", err)
	}
	if len(intents) != 0 {
		t.Errorf("Expected no intents for user2, got %d", len(intents))
	}
}

func TestListDeposits_FilterByStatus(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(10))
	createTestDeposit(t, service, "pay-2", "DEP-user1-2", decimal.NewFromInt(20))
	createTestDeposit(t, service, "pay-3", "DEP-user1-3", decimal.NewFromInt(30))
	notify(t, service, "pay-2", models.PaymentStatusFinished, decimal.NewFromInt(20))

	intents, total, err := service.ListDeposits(context.Background(), store.ListDepositsParams{
		AccountId: "user1",
		Status:    models.PaymentStatusFinished,
		Page:      models.Page{Page: 0, Limit: 10},
	})
	if err != nil {
		t.Fatalf("ListDeposits failed: %v", err)
	}
	if total != 1 || len(intents) != 1 {
		t.Fatalf("Expected 1 finished deposit, got total %d len %d", total, len(intents))
	}
	if intents[0].IntentId != "pay-2" {
		t.Errorf("Expected pay-2, got %s", intents[0].IntentId)
	}

	_, total, err = service.ListDeposits(context.Background(), store.ListDepositsParams{
		AccountId: "user1",
		Status:    models.PaymentStatusWaiting,
		Page:      models.Page{Page: 0, Limit: 10},
	})
	if err != nil {
		t.Fatalf("ListDeposits failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected 2 waiting deposits, got %d", total)
	}
}

func TestGetDepositByIntentId(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	createTestDeposit(t, service, "pay-1", "DEP-user1-1", decimal.NewFromInt(10))

	intent, entry, err := service.GetDepositByIntentId(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("GetDepositByIntentId failed: %v", err)
	}
	if intent.OrderId != "DEP-user1-1" {
		t.Errorf("Expected order DEP-user1-1, got %s", intent.OrderId)
	}
	if entry.Reference != "DEP-user1-1" {
		t.Errorf("Expected entry reference DEP-user1-1, got %s", entry.Reference)
	}

	if _, _, err := service.GetDepositByIntentId(context.Background(), "pay-404"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
