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

package database

const (
	// Account queries
	queryEnsureAccount = `
		INSERT INTO accounts (user_id, currency, balance, last_entry_id, version, created_at, updated_at)
		VALUES (?, ?, '0', '', 1, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`

	queryGetAccount = `
		SELECT user_id, currency, balance, last_entry_id, version, created_at, updated_at
		FROM accounts
		WHERE user_id = ?`

	queryListAccounts = `
		SELECT user_id, currency, balance, last_entry_id, version, created_at, updated_at
		FROM accounts
		ORDER BY user_id
		LIMIT ?`

	queryUpdateAccount = `
		UPDATE accounts
		SET balance = ?, last_entry_id = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`

	// Ledger entry queries
	ledgerEntryColumns = `id, account_id, kind, amount, currency, status, balance_before, balance_after,
		       description, reference, created_at, updated_at`

	queryInsertEntry = `
		INSERT INTO ledger_entries (
			id, account_id, kind, amount, currency, status, balance_before, balance_after,
			description, reference, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateEntryStatus = `
		UPDATE ledger_entries
		SET status = ?, updated_at = ?
		WHERE id = ?`

	queryUpdateEntrySnapshot = `
		UPDATE ledger_entries
		SET status = ?, balance_before = ?, balance_after = ?, updated_at = ?
		WHERE id = ?`

	queryGetEntryByReference = `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE reference = ? AND kind = ?`

	queryListEntries = `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	queryListEntriesByKind = `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE account_id = ? AND kind = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	queryCountEntries = `
		SELECT COUNT(*) FROM ledger_entries WHERE account_id = ?`

	queryCountEntriesByKind = `
		SELECT COUNT(*) FROM ledger_entries WHERE account_id = ? AND kind = ?`

	queryReconcileEntries = `
		SELECT kind, status, amount
		FROM ledger_entries
		WHERE account_id = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, entry_id, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	// Deposit intent queries
	depositIntentColumns = `intent_id, order_id, account_id, requested_amount, price_currency, pay_currency,
		       pay_address, pay_amount, status, actually_paid, created_at, updated_at`

	queryInsertDepositIntent = `
		INSERT INTO deposit_intents (
			intent_id, order_id, account_id, requested_amount, price_currency, pay_currency,
			pay_address, pay_amount, status, actually_paid, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '0', ?, ?)`

	queryGetDepositAccount = `
		SELECT account_id FROM deposit_intents WHERE intent_id = ?`

	queryGetDepositByIntent = `
		SELECT ` + depositIntentColumns + `
		FROM deposit_intents
		WHERE intent_id = ?`

	queryGetDepositByOrder = `
		SELECT ` + depositIntentColumns + `
		FROM deposit_intents
		WHERE order_id = ?`

	queryUpdateDepositStatus = `
		UPDATE deposit_intents
		SET status = ?, actually_paid = ?, updated_at = ?
		WHERE intent_id = ?`

	queryListDeposits = `
		SELECT ` + depositIntentColumns + `
		FROM deposit_intents
		WHERE account_id = ?
		ORDER BY created_at DESC, intent_id DESC
		LIMIT ? OFFSET ?`

	queryListDepositsByStatus = `
		SELECT ` + depositIntentColumns + `
		FROM deposit_intents
		WHERE account_id = ? AND status = ?
		ORDER BY created_at DESC, intent_id DESC
		LIMIT ? OFFSET ?`

	queryCountDeposits = `
		SELECT COUNT(*) FROM deposit_intents WHERE account_id = ?`

	queryCountDepositsByStatus = `
		SELECT COUNT(*) FROM deposit_intents WHERE account_id = ? AND status = ?`

	// Withdrawal queries
	withdrawalColumns = `id, account_id, requested_amount, currency, method, destination, status,
		       processing_fee, net_amount, transaction_hash, external_ref, notes,
		       created_at, processed_at, updated_at`

	queryInsertWithdrawal = `
		INSERT INTO withdrawal_requests (
			id, account_id, requested_amount, currency, method, destination, status,
			processing_fee, net_amount, transaction_hash, external_ref, notes,
			created_at, processed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', '', ?, NULL, ?)`

	queryGetWithdrawalAccount = `
		SELECT account_id FROM withdrawal_requests WHERE id = ?`

	queryGetWithdrawal = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE id = ?`

	queryUpdateWithdrawalStatus = `
		UPDATE withdrawal_requests
		SET status = ?, notes = ?, transaction_hash = ?, external_ref = ?, processed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryListWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	queryListWithdrawalsByStatus = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawal_requests
		WHERE account_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	queryCountWithdrawals = `
		SELECT COUNT(*) FROM withdrawal_requests WHERE account_id = ?`

	queryCountWithdrawalsByStatus = `
		SELECT COUNT(*) FROM withdrawal_requests WHERE account_id = ? AND status = ?`

	queryWithdrawalAmountsByStatus = `
		SELECT status, requested_amount
		FROM withdrawal_requests
		WHERE account_id = ?`

	// Manual reconciliation queries
	queryInsertIssue = `
		INSERT INTO reconciliation_issues (id, account_id, reference, kind, detail, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)`

	queryCountOpenIssues = `
		SELECT COUNT(*) FROM reconciliation_issues
		WHERE reference = ? AND kind = ? AND resolved_at IS NULL`

	queryListOpenIssues = `
		SELECT id, account_id, reference, kind, detail, created_at, resolved_at
		FROM reconciliation_issues
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT ?`
)
