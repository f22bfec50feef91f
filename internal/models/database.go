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

package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryKindDeposit    EntryKind = "deposit"
	EntryKindWithdrawal EntryKind = "withdrawal"
	EntryKindReversal   EntryKind = "reversal" // debit taking back a refunded deposit
	EntryKindRelease    EntryKind = "release"  // credit returning a withdrawal hold
)

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusCancelled EntryStatus = "cancelled"
	EntryStatusPartial   EntryStatus = "partial"
	EntryStatusReversed  EntryStatus = "reversed"
)

// PaymentStatus mirrors the payment provider's lifecycle
type PaymentStatus string

const (
	PaymentStatusWaiting       PaymentStatus = "waiting"
	PaymentStatusConfirming    PaymentStatus = "confirming"
	PaymentStatusConfirmed     PaymentStatus = "confirmed"
	PaymentStatusSending       PaymentStatus = "sending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFinished      PaymentStatus = "finished"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusExpired       PaymentStatus = "expired"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusWaiting, PaymentStatusConfirming, PaymentStatusConfirmed, PaymentStatusSending,
		PaymentStatusPartiallyPaid, PaymentStatusFinished, PaymentStatusFailed, PaymentStatusExpired,
		PaymentStatusRefunded:
		return true
	}
	return false
}

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusFailed || s == WithdrawalStatusCancelled
}

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusProcessing, WithdrawalStatusCompleted,
		WithdrawalStatusFailed, WithdrawalStatusCancelled:
		return true
	}
	return false
}

// Account represents a user's wallet balance (hot data), keyed by user id
type Account struct {
	UserId    string          `db:"user_id"`
	Currency  string          `db:"currency"`
	Balance   decimal.Decimal `db:"balance"`
	LastEntry string          `db:"last_entry_id"`
	Version   int64           `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// LedgerEntry is one money movement with the balance snapshot taken when it was applied
type LedgerEntry struct {
	Id            string          `db:"id"`
	AccountId     string          `db:"account_id"`
	Kind          EntryKind       `db:"kind"`
	Amount        decimal.Decimal `db:"amount"`
	Currency      string          `db:"currency"`
	Status        EntryStatus     `db:"status"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	Description   string          `db:"description"`
	Reference     string          `db:"reference"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// DepositIntent is one outstanding payment created with the provider
type DepositIntent struct {
	IntentId        string          `db:"intent_id"`
	OrderId         string          `db:"order_id"`
	AccountId       string          `db:"account_id"`
	RequestedAmount decimal.Decimal `db:"requested_amount"`
	PriceCurrency   string          `db:"price_currency"`
	PayCurrency     string          `db:"pay_currency"`
	PayAddress      string          `db:"pay_address"`
	PayAmount       decimal.Decimal `db:"pay_amount"`
	Status          PaymentStatus   `db:"status"`
	ActuallyPaid    decimal.Decimal `db:"actually_paid"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

type WithdrawalRequest struct {
	Id              string           `db:"id"`
	AccountId       string           `db:"account_id"`
	RequestedAmount decimal.Decimal  `db:"requested_amount"`
	Currency        string           `db:"currency"`
	Method          WithdrawalMethod `db:"method"`
	Destination     Destination      `db:"destination"`
	Status          WithdrawalStatus `db:"status"`
	ProcessingFee   decimal.Decimal  `db:"processing_fee"`
	NetAmount       decimal.Decimal  `db:"net_amount"`
	TransactionHash string           `db:"transaction_hash"`
	ExternalRef     string           `db:"external_ref"`
	Notes           string           `db:"notes"`
	CreatedAt       time.Time        `db:"created_at"`
	ProcessedAt     sql.NullTime     `db:"processed_at"`
	UpdatedAt       time.Time        `db:"updated_at"`
}

type IssueKind string

const (
	IssueRefundInsufficientBalance IssueKind = "refund_insufficient_balance"
	IssueLatePaymentAfterFailure   IssueKind = "late_payment_after_failure"
	IssueNotificationError         IssueKind = "notification_error"
	IssueUnknownIntent             IssueKind = "unknown_intent"
)

// ReconciliationIssue is a case an operator has to settle by hand
type ReconciliationIssue struct {
	Id         string       `db:"id"`
	AccountId  string       `db:"account_id"`
	Reference  string       `db:"reference"`
	Kind       IssueKind    `db:"kind"`
	Detail     string       `db:"detail"`
	CreatedAt  time.Time    `db:"created_at"`
	ResolvedAt sql.NullTime `db:"resolved_at"`
}

// JournalEntry is one side of the double-entry record for a ledger entry
type JournalEntry struct {
	Id           string          `db:"id"`
	EntryId      string          `db:"entry_id"`
	AccountType  string          `db:"account_type"`
	AccountId    string          `db:"account_id"`
	DebitAmount  decimal.Decimal `db:"debit_amount"`
	CreditAmount decimal.Decimal `db:"credit_amount"`
	CreatedAt    time.Time       `db:"created_at"`
}

// WithdrawalStats aggregates one account's withdrawals by status
type WithdrawalStats struct {
	ByStatus       map[WithdrawalStatus]StatusTotal `json:"byStatus"`
	TotalWithdrawn decimal.Decimal                  `json:"totalWithdrawn"`
}

type StatusTotal struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}
