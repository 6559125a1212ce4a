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
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email) VALUES (?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	// Contract queries
	queryInsertContract = `
		INSERT INTO contracts (id, user_id, principal, status, duration_days, start_time, end_time, payment_reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	contractColumns = `id, user_id, principal, status, duration_days, start_time, end_time, refunded_at, payment_reference, created_at`

	queryGetContract = `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE id = ? AND user_id = ?`

	queryGetUserContracts = `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE user_id = ?
		ORDER BY created_at, rowid`

	queryActivateContract = `
		UPDATE contracts
		SET status = 'active', start_time = ?, end_time = ?
		WHERE id = ? AND user_id = ? AND status = 'pending'`

	queryUpdateContractStatus = `
		UPDATE contracts
		SET status = ?
		WHERE id = ? AND user_id = ? AND status != 'refunded'`

	queryRefundContract = `
		UPDATE contracts
		SET status = 'refunded', refunded_at = ?
		WHERE id = ? AND user_id = ? AND status = 'active' AND refunded_at IS NULL`

	// Session queries
	sessionColumns = `id, user_id, contract_id, principal, started_at, ended_at, end_reason, last_heartbeat_at, earnings_added`

	queryInsertSession = `
		INSERT INTO run_sessions (id, user_id, contract_id, principal, started_at, earnings_added)
		VALUES (?, ?, ?, ?, ?, '0')`

	queryGetSession = `
		SELECT ` + sessionColumns + `
		FROM run_sessions
		WHERE id = ?`

	queryGetUserSession = `
		SELECT ` + sessionColumns + `
		FROM run_sessions
		WHERE id = ? AND user_id = ?`

	queryGetActiveSession = `
		SELECT ` + sessionColumns + `
		FROM run_sessions
		WHERE user_id = ? AND ended_at IS NULL`

	queryGetUsersWithActiveSessions = `
		SELECT DISTINCT user_id
		FROM run_sessions
		WHERE ended_at IS NULL
		ORDER BY user_id`

	queryUpdateSessionEarnings = `
		UPDATE run_sessions
		SET earnings_added = ?, last_heartbeat_at = ?
		WHERE id = ? AND ended_at IS NULL`

	queryTouchSession = `
		UPDATE run_sessions
		SET last_heartbeat_at = ?
		WHERE id = ? AND ended_at IS NULL`

	queryFinalizeSession = `
		UPDATE run_sessions
		SET ended_at = ?, end_reason = ?, last_heartbeat_at = ?
		WHERE id = ? AND ended_at IS NULL`

	// Chunk queries
	queryInsertChunk = `
		INSERT INTO accrual_chunks (id, session_id, chunk_index, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryCountChunks = `
		SELECT COUNT(*) FROM accrual_chunks WHERE session_id = ?`

	queryGetChunks = `
		SELECT id, session_id, chunk_index, amount, created_at
		FROM accrual_chunks
		WHERE session_id = ?
		ORDER BY chunk_index`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE user_id = ?`

	queryReconcileAmounts = `
		SELECT amount
		FROM transactions
		WHERE user_id = ? AND status = 'confirmed'`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM transactions WHERE idempotency_key = ? LIMIT 1`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE user_id = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, balance, version, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	queryInsertTransaction = `
		INSERT INTO transactions (
			id, user_id, transaction_type, amount, balance_before, balance_after,
			idempotency_key, reference, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, user_id, transaction_type, amount, balance_before, balance_after,
		       idempotency_key, reference, status, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	// Withdrawal queries
	queryInsertWithdrawal = `
		INSERT INTO withdrawals (id, user_id, amount, wallet, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetWithdrawals = `
		SELECT id, user_id, amount, wallet, status, created_at
		FROM withdrawals
		WHERE user_id = ?
		ORDER BY created_at, rowid`
)
