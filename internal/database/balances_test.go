package database

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	service := newService(db, dialectSQLite, 5, "usd")

	// Use the actual schema initialization
	if err := service.initSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

// fundAccount credits an account through a finished deposit
func fundAccount(t *testing.T, service *Service, accountId, intentId string, amount decimal.Decimal) {
	t.Helper()
	ctx := context.Background()

	_, _, err := service.CreateDepositIntent(ctx, store.CreateDepositParams{
		IntentId:        intentId,
		OrderId:         "DEP-" + accountId + "-" + intentId,
		AccountId:       accountId,
		RequestedAmount: amount,
		PriceCurrency:   "usd",
		PayCurrency:     "btc",
	})
	if err != nil {
		t.Fatalf("CreateDepositIntent failed: %v", err)
	}

	outcome, err := service.ApplyNotification(ctx, store.Notification{
		IntentId:     intentId,
		Status:       models.PaymentStatusFinished,
		ActuallyPaid: amount,
	})
	if err != nil {
		t.Fatalf("ApplyNotification failed: %v", err)
	}
	if outcome.Result != store.NotificationCredited {
		t.Fatalf("Expected result %s, got %s", store.NotificationCredited, outcome.Result)
	}
}

func TestGetAccount_CreatedLazily(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	account, err := service.GetAccount(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	if !account.Balance.Equal(decimal.Zero) {
		t.Errorf("Expected balance 0, got %s", account.Balance.String())
	}
	if account.Currency != "usd" {
		t.Errorf("Expected currency usd, got %s", account.Currency)
	}
	if account.Version != 1 {
		t.Errorf("Expected version 1, got %d", account.Version)
	}
}

func TestGetAccount_EmptyId(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.GetAccount(context.Background(), "")
	if !store.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestListAccounts(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	fundAccount(t, service, "user-b", "11", decimal.NewFromInt(30))
	fundAccount(t, service, "user-a", "12", decimal.NewFromInt(10))

	accounts, err := service.ListAccounts(ctx, 10)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].UserId != "user-a" {
		t.Errorf("Expected accounts ordered by user id, got %s first", accounts[0].UserId)
	}
	if !accounts[1].Balance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Expected balance 30, got %s", accounts[1].Balance.String())
	}

	limited, err := service.ListAccounts(ctx, 1)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestReconcileAccount_AfterMixedActivity(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "user1", "pay-1", decimal.NewFromInt(100))
	fundAccount(t, service, "user1", "pay-2", decimal.NewFromInt(50))

	// Refund the second deposit
	if _, err := service.ApplyNotification(ctx, store.Notification{
		IntentId: "pay-2", Status: models.PaymentStatusRefunded, ActuallyPaid: decimal.NewFromInt(50),
	}); err != nil {
		t.Fatalf("ApplyNotification failed: %v", err)
	}

	// Hold then cancel one withdrawal, hold and complete another
	createTestWithdrawal(t, service, "WD-000001-1", "user1", decimal.NewFromInt(30))
	if _, err := service.CancelWithdrawal(ctx, "WD-000001-1", "user1", "changed my mind"); err != nil {
		t.Fatalf("CancelWithdrawal failed: %v", err)
	}
	createTestWithdrawal(t, service, "WD-000001-2", "user1", decimal.NewFromInt(40))
	if _, err := service.FinalizeWithdrawal(ctx, store.FinalizeWithdrawalParams{
		WithdrawalId: "WD-000001-2", Outcome: models.WithdrawalStatusCompleted,
	}); err != nil {
		t.Fatalf("FinalizeWithdrawal failed: %v", err)
	}

	result, err := service.ReconcileAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("ReconcileAccount failed: %v", err)
	}

	expected := decimal.NewFromInt(60)
	if !result.Stored.Equal(expected) {
		t.Errorf("Expected stored balance %s, got %s", expected.String(), result.Stored.String())
	}
	if !result.Consistent() {
		t.Errorf("Expected consistent balance, stored %s calculated %s",
			result.Stored.String(), result.Calculated.String())
	}
}

func TestReconcileAccount_DetectsDrift(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "user1", "pay-1", decimal.NewFromInt(10))

	if _, err := service.db.Exec("UPDATE accounts SET balance = '15' WHERE user_id = 'user1'"); err != nil {
		t.Fatalf("Failed to tamper with balance: %v", err)
	}

	result, err := service.ReconcileAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("ReconcileAccount failed: %v", err)
	}
	if result.Consistent() {
		t.Error("Expected inconsistent balance")
	}
	if !result.Calculated.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected calculated balance 10, got %s", result.Calculated.String())
	}
}

func TestConcurrentNotifications_CreditOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.NewFromInt(25)
	_, _, err := service.CreateDepositIntent(ctx, store.CreateDepositParams{
		IntentId:        "pay-1",
		OrderId:         "DEP-user1-1",
		AccountId:       "user1",
		RequestedAmount: amount,
		PriceCurrency:   "usd",
		PayCurrency:     "btc",
	})
	if err != nil {
		t.Fatalf("CreateDepositIntent failed: %v", err)
	}

	const deliveries = 8
	var wg sync.WaitGroup
	results := make(chan store.NotificationResult, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := service.ApplyNotification(ctx, store.Notification{
				IntentId: "pay-1", Status: models.PaymentStatusFinished, ActuallyPaid: amount,
			})
			if err != nil {
				t.Errorf("ApplyNotification failed: %v", err)
				return
			}
			results <- outcome.Result
		}()
	}
	wg.Wait()
	close(results)

	credited := 0
	for result := range results {
		if result == store.NotificationCredited {
			credited++
		}
	}
	if credited != 1 {
		t.Errorf("Expected exactly 1 credit, got %d", credited)
	}

	account, err := service.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.Balance.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), account.Balance.String())
	}
}

func TestListEntries_Paging(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "user1", "pay-1", decimal.NewFromInt(10))
	fundAccount(t, service, "user1", "pay-2", decimal.NewFromInt(20))
	fundAccount(t, service, "user1", "pay-3", decimal.NewFromInt(30))
	createTestWithdrawal(t, service, "WD-000001-1", "user1", decimal.NewFromInt(20))

	entries, total, err := service.ListEntries(ctx, store.ListEntriesParams{
		AccountId: "user1",
		Page:      models.Page{Page: 0, Limit: 2},
	})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected total 4, got %d", total)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}

	deposits, total, err := service.ListEntries(ctx, store.ListEntriesParams{
		AccountId: "user1",
		Kind:      models.EntryKindDeposit,
		Page:      models.Page{Page: 1, Limit: 2},
	})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	if len(deposits) != 1 {
		t.Errorf("Expected 1 entry on second page, got %d", len(deposits))
	}
	for _, entry := range deposits {
		if entry.Kind != models.EntryKindDeposit {
			t.Errorf("Expected kind deposit, got %s", entry.Kind)
		}
	}
}

func TestSignedAmount(t *testing.T) {
	amount := decimal.NewFromInt(5)
	tests := []struct {
		kind     models.EntryKind
		status   models.EntryStatus
		expected decimal.Decimal
	}{
		{models.EntryKindDeposit, models.EntryStatusPending, decimal.Zero},
		{models.EntryKindDeposit, models.EntryStatusCompleted, amount},
		{models.EntryKindDeposit, models.EntryStatusReversed, amount},
		{models.EntryKindDeposit, models.EntryStatusFailed, decimal.Zero},
		{models.EntryKindWithdrawal, models.EntryStatusPending, amount.Neg()},
		{models.EntryKindWithdrawal, models.EntryStatusCancelled, amount.Neg()},
		{models.EntryKindReversal, models.EntryStatusCompleted, amount.Neg()},
		{models.EntryKindRelease, models.EntryStatusCompleted, amount},
	}

	for _, tt := range tests {
		got := signedAmount(tt.kind, tt.status, amount)
		if !got.Equal(tt.expected) {
			t.Errorf("%s/%s: expected %s, got %s", tt.kind, tt.status, tt.expected.String(), got.String())
		}
	}
}

func TestRebind(t *testing.T) {
	query := "UPDATE t SET a = ?, b = ? WHERE c = ?"

	if got := dialectSQLite.rebind(query); got != query {
		t.Errorf("Expected sqlite query unchanged, got %s", got)
	}

	expected := "UPDATE t SET a = $1, b = $2 WHERE c = $3"
	if got := dialectPostgres.rebind(query); got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
}
