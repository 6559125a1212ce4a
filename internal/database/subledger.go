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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubledgerService handles the withdrawable-balance ledger
type SubledgerService struct {
	db *sql.DB
}

func NewSubledgerService(db *sql.DB) *SubledgerService {
	return &SubledgerService{
		db: db,
	}
}

// ProcessTransaction atomically updates balance and records transaction
func (s *SubledgerService) ProcessTransaction(ctx context.Context, params store.LedgerParams) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeFailure("begin ledger transaction", err)
	}
	defer tx.Rollback()

	transaction, err := s.applyTransaction(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeFailure("commit ledger transaction", err)
	}
	return transaction, nil
}

// applyTransaction records one ledger mutation inside an open transaction so
// callers can commit it together with their own rows.
func (s *SubledgerService) applyTransaction(ctx context.Context, tx *sql.Tx, params store.LedgerParams) (*models.Transaction, error) {
	zap.L().Info("Processing transaction",
		zap.String("user_id", params.UserId),
		zap.String("type", params.TransactionType),
		zap.String("amount", params.Amount.String()),
		zap.String("idempotency_key", params.IdempotencyKey))

	if params.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}

	// Check for duplicate idempotency key
	var existingTxId string
	err := tx.QueryRowContext(ctx, queryCheckDuplicateTransaction, params.IdempotencyKey).Scan(&existingTxId)
	if err == nil {
		zap.L().Warn("Duplicate idempotency key detected, skipping",
			zap.String("idempotency_key", params.IdempotencyKey),
			zap.String("existing_internal_tx_id", existingTxId))
		return nil, fmt.Errorf("%w: idempotency key %s already exists", store.ErrDuplicateTransaction, params.IdempotencyKey)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeFailure("check for duplicate transaction", err)
	}

	var currentBalanceStr string
	var accountId string
	var version int64

	err = tx.QueryRowContext(ctx, queryGetAccountBalance, params.UserId).Scan(&accountId, &currentBalanceStr, &version)

	var currentBalance decimal.Decimal
	if errors.Is(err, sql.ErrNoRows) {
		// Create new account balance record
		accountId = uuid.New().String()
		currentBalance = decimal.Zero
		version = 1

		_, err = tx.ExecContext(ctx, queryInsertAccountBalance, accountId, params.UserId, "0", 1, params.At)
		if err != nil {
			return nil, storeFailure("create account balance", err)
		}
	} else if err != nil {
		return nil, storeFailure("get current balance", err)
	} else {
		currentBalance, err = parseDecimal("balance", currentBalanceStr)
		if err != nil {
			return nil, err
		}
	}

	newBalance := currentBalance.Add(params.Amount)
	if newBalance.IsNegative() {
		zap.L().Warn("Rejecting transaction that would overdraw balance",
			zap.String("user_id", params.UserId),
			zap.String("balance", currentBalance.String()),
			zap.String("amount", params.Amount.String()))
		return nil, fmt.Errorf("%w: balance %s, requested %s", store.ErrInsufficientFunds, currentBalance.String(), params.Amount.Neg().String())
	}

	transaction := &models.Transaction{
		Id:              uuid.New().String(),
		UserId:          params.UserId,
		TransactionType: params.TransactionType,
		Amount:          params.Amount,
		BalanceBefore:   currentBalance,
		BalanceAfter:    newBalance,
		IdempotencyKey:  params.IdempotencyKey,
		Reference:       params.Reference,
		Status:          "confirmed",
		CreatedAt:       params.At,
	}

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		transaction.Id, transaction.UserId, transaction.TransactionType,
		transaction.Amount.String(), transaction.BalanceBefore.String(), transaction.BalanceAfter.String(),
		transaction.IdempotencyKey, transaction.Reference, transaction.Status, transaction.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: idempotency key %s already exists", store.ErrDuplicateTransaction, params.IdempotencyKey)
		}
		return nil, storeFailure("insert transaction", err)
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance, newBalance.String(), transaction.Id, params.At, params.UserId, version)
	if err != nil {
		return nil, storeFailure("update balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, storeFailure("check rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.addJournalEntries(ctx, tx, transaction); err != nil {
		return nil, storeFailure("add journal entries", err)
	}

	zap.L().Info("Transaction processed successfully",
		zap.String("transaction_id", transaction.Id),
		zap.String("user_id", params.UserId),
		zap.String("old_balance", currentBalance.String()),
		zap.String("new_balance", newBalance.String()))

	return transaction, nil
}

type journalEntry struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// addJournalEntries creates double-entry bookkeeping entries
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, transaction *models.Transaction) error {
	userAccount := fmt.Sprintf("%s_withdrawable", transaction.UserId)

	var entries []journalEntry
	switch transaction.TransactionType {
	case models.TransactionAccrual:
		// Earnings are an expense of the platform and a liability owed to the user
		entries = []journalEntry{
			{"user_withdrawable", userAccount, transaction.Amount, decimal.Zero},
			{"system_expense", "run_earnings", decimal.Zero, transaction.Amount},
		}
	case models.TransactionRefund:
		// Principal moves from contract custody back to the user
		entries = []journalEntry{
			{"user_withdrawable", userAccount, transaction.Amount, decimal.Zero},
			{"system_liability", "contract_principal", decimal.Zero, transaction.Amount},
		}
	case models.TransactionWithdrawal:
		entries = []journalEntry{
			{"user_withdrawable", userAccount, decimal.Zero, transaction.Amount.Neg()},
			{"system_liability", "user_withdrawals", transaction.Amount.Neg(), decimal.Zero},
		}
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Id, entry.accountType, entry.accountId, entry.debitAmount.String(), entry.creditAmount.String())
		if err != nil {
			return err
		}
	}

	return nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to parse %s '%s': %w", store.ErrStoreFailure, field, value, err)
	}
	return d, nil
}
