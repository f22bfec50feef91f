package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// setupFileDb opens a file database with several connections so goroutines
// really overlap, unlike the single-connection :memory: fixture.
func setupFileDb(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "wallet.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  time.Second,
		MaxRetries:   5,
	}, "usd")
	if err != nil {
		t.Fatalf("Failed to open file database: %v", err)
	}
	t.Cleanup(func() { service.Close() })
	return service
}

// bumpVersion simulates another writer committing between load and update
func bumpVersion(ctx context.Context, tx *sql.Tx, accountId string) error {
	_, err := tx.ExecContext(ctx, "UPDATE accounts SET version = version + 1 WHERE user_id = ?", accountId)
	return err
}

func TestWithAccount_RetriesAfterVersionConflict(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "user1", "pay-1", decimal.NewFromInt(100))
	before, err := service.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}

	attempts := 0
	err = service.withAccount(ctx, "user1", func(tx *sql.Tx, acct *accountState) error {
		attempts++
		if attempts == 1 {
			if err := bumpVersion(ctx, tx, "user1"); err != nil {
				return err
			}
		}
		acct.balance = acct.balance.Add(decimal.NewFromInt(10))
		return nil
	})
	if err != nil {
		t.Fatalf("withAccount failed: %v", err)
	}

	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}

	after, err := service.GetAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !after.Balance.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Expected balance 110 after a single commit, got %s", after.Balance.String())
	}
	if after.Version != before.Version+1 {
		t.Errorf("Expected version %d, got %d", before.Version+1, after.Version)
	}
}

func TestWithAccount_GivesUpAfterMaxRetries(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "user1", "pay-1", decimal.NewFromInt(100))

	attempts := 0
	err := service.withAccount(ctx, "user1", func(tx *sql.Tx, acct *accountState) error {
		attempts++
		acct.balance = acct.balance.Add(decimal.NewFromInt(10))
		return bumpVersion(ctx, tx, "user1")
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification, got %v", err)
	}
	if attempts != service.maxRetries {
		t.Errorf("Expected %d attempts, got %d", service.maxRetries, attempts)
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100 after rollback, got %s", balance.String())
	}
}

func TestCancelAndFailRace_ReleasesOnce(t *testing.T) {
	service := setupFileDb(t)
	ctx := context.Background()

	fundAccount(t, service, "user1", "pay-1", decimal.NewFromInt(100))

	const rounds = 5
	for i := 1; i <= rounds; i++ {
		id := fmt.Sprintf("WD-000001-%d", i)
		createTestWithdrawal(t, service, id, "user1", decimal.NewFromInt(40))

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, errs[0] = service.CancelWithdrawal(ctx, id, "user1", "")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errs[1] = service.FinalizeWithdrawal(ctx, store.FinalizeWithdrawalParams{
				WithdrawalId: id,
				Outcome:      models.WithdrawalStatusFailed,
				Notes:        "rail rejected",
			})
		}()
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, store.ErrInvalidState):
				t.Errorf("Round %d: expected ErrInvalidState for the losing transition, got %v", i, err)
			}
		}
		if succeeded != 1 {
			t.Errorf("Round %d: expected exactly 1 transition to win, got %d", i, succeeded)
		}
	}

	_, releases, err := service.ListEntries(ctx, store.ListEntriesParams{
		AccountId: "user1",
		Kind:      models.EntryKindRelease,
		Page:      models.Page{Page: 0, Limit: 100},
	})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if releases != rounds {
		t.Errorf("Expected %d release entries, got %d", rounds, releases)
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100, got %s", balance.String())
	}

	result, err := service.ReconcileAccount(ctx, "user1")
	if err != nil {
		t.Fatalf("ReconcileAccount failed: %v", err)
	}
	if !result.Consistent() {
		t.Errorf("Expected ledger to match balance, stored %s calculated %s", result.Stored.String(), result.Calculated.String())
	}
}

func TestConcurrentNotifications_FileDatabaseCreditOnce(t *testing.T) {
	service := setupFileDb(t)
	ctx := context.Background()

	amount := decimal.NewFromInt(25)
	createTestDeposit(t, service, "pay-1", "DEP-user1-1", amount)

	const deliveries = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0
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
			if outcome.Result == store.NotificationCredited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if credited != 1 {
		t.Errorf("Expected exactly 1 credit, got %d", credited)
	}
	if balance := balanceOf(t, service, "user1"); !balance.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), balance.String())
	}
}
