package database

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

type dialect struct {
	name       string
	positional bool // $1, $2 instead of ?
	schema     string
}

var (
	dialectSQLite   = dialect{name: DriverSQLite, schema: sqliteSchema}
	dialectPostgres = dialect{name: DriverPostgres, positional: true, schema: postgresSchema}
)

// rebind rewrites ? placeholders for drivers that use numbered parameters
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// isUniqueViolation reports whether err is a primary key or unique index conflict
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Amounts are stored as TEXT decimal strings in both dialects.
const sqliteSchema = `
	-- Accounts (current state - hot data)
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_entry_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- Ledger entries (audit trail)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference ON ledger_entries(reference);

	CREATE TABLE IF NOT EXISTS deposit_intents (
		intent_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		requested_amount TEXT NOT NULL,
		price_currency TEXT NOT NULL,
		pay_currency TEXT NOT NULL,
		pay_address TEXT NOT NULL DEFAULT '',
		pay_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		actually_paid TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposit_intents_account ON deposit_intents(account_id, created_at);

	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		requested_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		method TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		processing_fee TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		transaction_hash TEXT NOT NULL DEFAULT '',
		external_ref TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_account ON withdrawal_requests(account_id, status);

	-- Journal entries for double-entry bookkeeping
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_entry_id ON journal_entries(entry_id);
	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account_type, account_id);

	CREATE TABLE IF NOT EXISTS reconciliation_issues (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_issues_open ON reconciliation_issues(resolved_at, created_at);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		last_entry_id TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(user_id),
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference ON ledger_entries(reference);

	CREATE TABLE IF NOT EXISTS deposit_intents (
		intent_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL REFERENCES accounts(user_id),
		requested_amount TEXT NOT NULL,
		price_currency TEXT NOT NULL,
		pay_currency TEXT NOT NULL,
		pay_address TEXT NOT NULL DEFAULT '',
		pay_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		actually_paid TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposit_intents_account ON deposit_intents(account_id, created_at);

	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(user_id),
		requested_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		method TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		processing_fee TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		transaction_hash TEXT NOT NULL DEFAULT '',
		external_ref TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_account ON withdrawal_requests(account_id, status);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_entry_id ON journal_entries(entry_id);
	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account_type, account_id);

	CREATE TABLE IF NOT EXISTS reconciliation_issues (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_issues_open ON reconciliation_issues(resolved_at, created_at);
	`
