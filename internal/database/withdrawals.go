package database

import (
	"context"
	"database/sql"
	"fmt"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const withdrawalCompleted = "completed"

// RecordWithdrawal debits the ledger and records the withdrawal row in one
// transaction. It fails with store.ErrInsufficientFunds when the balance
// does not cover the amount.
func (s *Service) RecordWithdrawal(ctx context.Context, params store.WithdrawalParams) (*models.Withdrawal, decimal.Decimal, error) {
	if !params.Amount.IsPositive() {
		return nil, decimal.Zero, fmt.Errorf("%w: withdrawal amount must be positive, got %s", store.ErrInvalidState, params.Amount.String())
	}

	withdrawal := &models.Withdrawal{
		Id:        uuid.New().String(),
		UserId:    params.UserId,
		Amount:    params.Amount,
		Wallet:    params.Wallet,
		Status:    withdrawalCompleted,
		CreatedAt: params.At,
	}

	var newBalance decimal.Decimal
	err := s.withTx(ctx, "record withdrawal", func(tx *sql.Tx) error {
		transaction, err := s.subledger.applyTransaction(ctx, tx, store.LedgerParams{
			UserId:          params.UserId,
			TransactionType: models.TransactionWithdrawal,
			Amount:          params.Amount.Neg(),
			IdempotencyKey:  "withdrawal:" + withdrawal.Id,
			Reference:       params.Wallet,
			At:              params.At,
		})
		if err != nil {
			return err
		}
		newBalance = transaction.BalanceAfter

		_, err = tx.ExecContext(ctx, queryInsertWithdrawal,
			withdrawal.Id, withdrawal.UserId, withdrawal.Amount.String(), withdrawal.Wallet, withdrawal.Status, withdrawal.CreatedAt)
		if err != nil {
			return storeFailure("insert withdrawal", err)
		}
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	zap.L().Info("Withdrawal recorded",
		zap.String("user_id", params.UserId),
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("amount", params.Amount.String()),
		zap.String("new_balance", newBalance.String()))

	return withdrawal, newBalance, nil
}

func (s *Service) GetWithdrawals(ctx context.Context, userId string) ([]models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWithdrawals, userId)
	if err != nil {
		return nil, storeFailure("query withdrawals", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var withdrawals []models.Withdrawal
	for rows.Next() {
		var w models.Withdrawal
		var amountStr string
		if err := rows.Scan(&w.Id, &w.UserId, &amountStr, &w.Wallet, &w.Status, &w.CreatedAt); err != nil {
			return nil, storeFailure("scan withdrawal", err)
		}
		if w.Amount, err = parseDecimal("amount", amountStr); err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure("iterate withdrawal rows", err)
	}

	return withdrawals, nil
}
