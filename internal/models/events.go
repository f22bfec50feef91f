package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventDepositRequested     EventType = "wallet.deposit.requested"
	EventDepositCredited      EventType = "wallet.deposit.credited"
	EventDepositFailed        EventType = "wallet.deposit.failed"
	EventDepositReversed      EventType = "wallet.deposit.reversed"
	EventWithdrawalRequested  EventType = "wallet.withdrawal.requested"
	EventWithdrawalProcessing EventType = "wallet.withdrawal.processing"
	EventWithdrawalCompleted  EventType = "wallet.withdrawal.completed"
	EventWithdrawalFailed     EventType = "wallet.withdrawal.failed"
	EventWithdrawalCancelled  EventType = "wallet.withdrawal.cancelled"
)

// LedgerEvent describes one committed transition
type LedgerEvent struct {
	Type         EventType       `json:"type"`
	AccountId    string          `json:"accountId"`
	EntryId      string          `json:"entryId"`
	Reference    string          `json:"reference"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

// MovesBalance reports whether the event changed the account balance
func (e LedgerEvent) MovesBalance() bool {
	switch e.Type {
	case EventDepositCredited, EventDepositReversed, EventWithdrawalRequested,
		EventWithdrawalFailed, EventWithdrawalCancelled:
		return true
	}
	return false
}
