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

package store

import (
	"context"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// CreateDepositParams contains the parameters for persisting a new deposit intent.
type CreateDepositParams struct {
	IntentId        string
	OrderId         string
	AccountId       string
	RequestedAmount decimal.Decimal
	PriceCurrency   string
	PayCurrency     string
	PayAddress      string
	PayAmount       decimal.Decimal
	Status          models.PaymentStatus
	Description     string
}

// Notification is one provider status callback for a deposit intent.
type Notification struct {
	IntentId     string
	Status       models.PaymentStatus
	ActuallyPaid decimal.Decimal
}

type NotificationResult string

const (
	NotificationApplied  NotificationResult = "applied"
	NotificationIgnored  NotificationResult = "ignored"
	NotificationFlagged  NotificationResult = "flagged"
	NotificationCredited NotificationResult = "credited"
	NotificationReversed NotificationResult = "reversed"
)

// NotificationOutcome reports what applying a notification did.
type NotificationOutcome struct {
	Result  NotificationResult
	Intent  *models.DepositIntent
	Entry   *models.LedgerEntry
	Reverse *models.LedgerEntry // set when a refund debited the account
}

// CreateWithdrawalParams contains the parameters for holding funds against a withdrawal.
type CreateWithdrawalParams struct {
	Id            string
	AccountId     string
	Amount        decimal.Decimal
	Currency      string
	Method        models.WithdrawalMethod
	Destination   models.Destination
	ProcessingFee decimal.Decimal
	NetAmount     decimal.Decimal
	Description   string
}

// FinalizeWithdrawalParams contains the operator outcome for a withdrawal.
type FinalizeWithdrawalParams struct {
	WithdrawalId    string
	Outcome         models.WithdrawalStatus
	Notes           string
	TransactionHash string
}

// WithdrawalResult pairs a withdrawal with its correlated ledger entry after a transition.
type WithdrawalResult struct {
	Withdrawal *models.WithdrawalRequest
	Entry      *models.LedgerEntry
	Balance    decimal.Decimal
}

// ListEntriesParams filters ledger history.
type ListEntriesParams struct {
	AccountId string
	Kind      models.EntryKind
	Page      models.Page
}

// ListDepositsParams filters an account's deposits by provider status.
type ListDepositsParams struct {
	AccountId string
	Status    models.PaymentStatus
	Page      models.Page
}

// ListWithdrawalsParams filters an account's withdrawals.
type ListWithdrawalsParams struct {
	AccountId string
	Status    models.WithdrawalStatus
	Page      models.Page
}

// ReconcileResult compares the stored balance with the ledger.
type ReconcileResult struct {
	AccountId  string
	Stored     decimal.Decimal
	Calculated decimal.Decimal
}

func (r ReconcileResult) Consistent() bool {
	return r.Stored.Equal(r.Calculated)
}

// WalletStore defines the persistence contract of the wallet ledger. Every
// method that changes a balance or a status commits as one unit scoped to
// the account.
type WalletStore interface {
	// --- Accounts ---
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)

	// --- Deposits ---
	CreateDepositIntent(ctx context.Context, params CreateDepositParams) (*models.DepositIntent, *models.LedgerEntry, error)
	GetDepositByOrderId(ctx context.Context, orderId string) (*models.DepositIntent, *models.LedgerEntry, error)
	GetDepositByIntentId(ctx context.Context, intentId string) (*models.DepositIntent, *models.LedgerEntry, error)
	ListDeposits(ctx context.Context, params ListDepositsParams) ([]models.DepositIntent, int, error)
	ApplyNotification(ctx context.Context, n Notification) (*NotificationOutcome, error)

	// --- Withdrawals ---
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*WithdrawalResult, error)
	GetWithdrawal(ctx context.Context, withdrawalId string) (*models.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, params ListWithdrawalsParams) ([]models.WithdrawalRequest, int, error)
	CancelWithdrawal(ctx context.Context, withdrawalId, accountId, notes string) (*WithdrawalResult, error)
	MarkWithdrawalProcessing(ctx context.Context, withdrawalId, externalRef string) (*WithdrawalResult, error)
	FinalizeWithdrawal(ctx context.Context, params FinalizeWithdrawalParams) (*WithdrawalResult, error)
	GetWithdrawalStats(ctx context.Context, accountId string) (*models.WithdrawalStats, error)

	// --- Ledger ---
	ListEntries(ctx context.Context, params ListEntriesParams) ([]models.LedgerEntry, int, error)
	ReconcileAccount(ctx context.Context, accountId string) (*ReconcileResult, error)

	// --- Manual reconciliation ---
	RecordIssue(ctx context.Context, issue models.ReconciliationIssue) error
	ListOpenIssues(ctx context.Context, limit int) ([]models.ReconciliationIssue, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
