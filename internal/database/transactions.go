package database

import (
	"context"
	"database/sql"
	"fmt"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetTransactionHistory returns paginated transaction history for a user
func (s *SubledgerService) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, limit, offset)
	if err != nil {
		return nil, storeFailure("get transaction history", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var amountStr, balanceBeforeStr, balanceAfterStr string
		err := rows.Scan(&tx.Id, &tx.UserId, &tx.TransactionType,
			&amountStr, &balanceBeforeStr, &balanceAfterStr,
			&tx.IdempotencyKey, &tx.Reference, &tx.Status, &tx.CreatedAt)
		if err != nil {
			return nil, storeFailure("scan transaction", err)
		}

		if tx.Amount, err = parseDecimal("amount", amountStr); err != nil {
			return nil, err
		}
		if tx.BalanceBefore, err = parseDecimal("balance before", balanceBeforeStr); err != nil {
			return nil, err
		}
		if tx.BalanceAfter, err = parseDecimal("balance after", balanceAfterStr); err != nil {
			return nil, err
		}

		transactions = append(transactions, tx)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, storeFailure("iterate transaction rows", err)
	}

	return transactions, nil
}

// Subledger convenience methods

func (s *Service) GetUserBalance(ctx context.Context, userId string) (decimal.Decimal, error) {
	return s.subledger.GetBalance(ctx, userId)
}

func (s *Service) ProcessTransaction(ctx context.Context, params store.LedgerParams) (*models.Transaction, error) {
	transaction, err := s.subledger.ProcessTransaction(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("error processing %s transaction: %w", params.TransactionType, err)
	}
	return transaction, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error) {
	return s.subledger.GetTransactionHistory(ctx, userId, limit, offset)
}

func (s *Service) ReconcileUserBalance(ctx context.Context, userId string) error {
	return s.subledger.ReconcileBalance(ctx, userId)
}
