package formance

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// movement is the ledger phase an event corresponds to on the mirror
type movement string

const (
	movementCredit  movement = "credit"
	movementHold    movement = "hold"
	movementRelease movement = "release"
	movementSettle  movement = "settle"
	movementReverse movement = "reverse"
)

const pendingWithdrawals = "withdrawals:pending"

// ---------------------------------------------------------------------------
// Numscript templates. Metadata is set inside each script so the mirrored
// transaction carries the local entry and reference it came from.
// ---------------------------------------------------------------------------

const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $entry_id
  string $reference
  string $amount_human
}

send [$asset $amount] (
  source = @world
  destination = @users:$user_id
)

set_tx_meta("event_type", "deposit_credited")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference", $reference)
set_tx_meta("amount_human", $amount_human)
`

const numscriptHold = `vars {
  asset $asset
  number $amount
  account $user_id
  string $entry_id
  string $reference
  string $amount_human
}

send [$asset $amount] (
  source = @users:$user_id
  destination = @withdrawals:pending
)

set_tx_meta("event_type", "withdrawal_hold")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference", $reference)
set_tx_meta("amount_human", $amount_human)
`

const numscriptRelease = `vars {
  asset $asset
  number $amount
  account $user_id
  string $entry_id
  string $reference
  string $amount_human
}

send [$asset $amount] (
  source = @withdrawals:pending
  destination = @users:$user_id
)

set_tx_meta("event_type", "withdrawal_release")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference", $reference)
set_tx_meta("amount_human", $amount_human)
`

const numscriptSettle = `vars {
  asset $asset
  number $amount
  string $entry_id
  string $reference
  string $amount_human
}

send [$asset $amount] (
  source = @withdrawals:pending
  destination = @world
)

set_tx_meta("event_type", "withdrawal_settled")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference", $reference)
set_tx_meta("amount_human", $amount_human)
`

// The local store only reverses what the balance covers, so the mirror never
// needs overdraft on the user account.
const numscriptReverse = `vars {
  asset $asset
  number $amount
  account $user_id
  string $entry_id
  string $reference
  string $amount_human
}

send [$asset $amount] (
  source = @users:$user_id
  destination = @world
)

set_tx_meta("event_type", "deposit_reversed")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference", $reference)
set_tx_meta("amount_human", $amount_human)
`

var movementScripts = map[movement]string{
	movementCredit:  numscriptCredit,
	movementHold:    numscriptHold,
	movementRelease: numscriptRelease,
	movementSettle:  numscriptSettle,
	movementReverse: numscriptReverse,
}

// movementFor maps a committed event to the mirrored movement. Events that
// only change a status return false.
func movementFor(t models.EventType) (movement, bool) {
	switch t {
	case models.EventDepositCredited:
		return movementCredit, true
	case models.EventDepositReversed:
		return movementReverse, true
	case models.EventWithdrawalRequested:
		return movementHold, true
	case models.EventWithdrawalFailed, models.EventWithdrawalCancelled:
		return movementRelease, true
	case models.EventWithdrawalCompleted:
		return movementSettle, true
	}
	return "", false
}

// mirrorReference is the idempotency key of a mirrored movement
func mirrorReference(entryId string, m movement) string {
	return entryId + "-" + string(m)
}

// buildTransaction renders the Numscript post for an event
func buildTransaction(event models.LedgerEvent, m movement) (shared.V2PostTransaction, error) {
	script, ok := movementScripts[m]
	if !ok {
		return shared.V2PostTransaction{}, fmt.Errorf("no script for movement %s", m)
	}
	if event.EntryId == "" {
		return shared.V2PostTransaction{}, fmt.Errorf("event %s has no entry id", event.Type)
	}
	if !event.Amount.IsPositive() {
		return shared.V2PostTransaction{}, fmt.Errorf("event %s has non-positive amount %s", event.Type, event.Amount.String())
	}

	p := precisionFor(event.Currency)
	vars := map[string]string{
		"asset":        formanceAsset(event.Currency),
		"amount":       event.Amount.Shift(int32(p)).BigInt().String(),
		"entry_id":     event.EntryId,
		"reference":    event.Reference,
		"amount_human": event.Amount.String(),
	}
	if m != movementSettle {
		vars["user_id"] = event.AccountId
	}

	post := shared.V2PostTransaction{
		Reference: strPtr(mirrorReference(event.EntryId, m)),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
	}
	if !event.OccurredAt.IsZero() {
		ts := event.OccurredAt
		post.Timestamp = &ts
	}
	return post, nil
}

// Publish mirrors one committed event. A duplicate reference means the
// movement was already mirrored and is treated as success.
func (m *Mirror) Publish(ctx context.Context, event models.LedgerEvent) error {
	mv, ok := movementFor(event.Type)
	if !ok {
		return nil
	}

	post, err := buildTransaction(event, mv)
	if err != nil {
		return err
	}

	_, err = m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            m.ledger,
		V2PostTransaction: post,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Movement already mirrored",
				zap.String("reference", *post.Reference))
			return nil
		}
		return fmt.Errorf("failed to mirror %s for entry %s: %w", mv, event.EntryId, err)
	}

	zap.L().Info("Movement mirrored to Formance",
		zap.String("movement", string(mv)),
		zap.String("account_id", event.AccountId),
		zap.String("entry_id", event.EntryId),
		zap.String("amount", event.Amount.String()),
		zap.String("currency", event.Currency))
	return nil
}
