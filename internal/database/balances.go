package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the current withdrawable balance for a user (O(1) lookup)
func (s *SubledgerService) GetBalance(ctx context.Context, userId string) (decimal.Decimal, error) {
	zap.L().Debug("Getting balance", zap.String("user_id", userId))

	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId).Scan(&balanceStr)
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return decimal.Zero, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("user_id", userId), zap.Error(err))
		return decimal.Zero, storeFailure("get balance", err)
	}

	balance, err := parseDecimal("balance", balanceStr)
	if err != nil {
		zap.L().Error("Failed to parse balance", zap.String("balance_str", balanceStr), zap.Error(err))
		return decimal.Zero, err
	}

	zap.L().Debug("Retrieved balance", zap.String("user_id", userId), zap.String("balance", balance.String()))
	return balance, nil
}

// ReconcileBalance verifies that current balance matches sum of all transactions
func (s *SubledgerService) ReconcileBalance(ctx context.Context, userId string) error {
	zap.L().Info("Reconciling balance", zap.String("user_id", userId))

	currentBalance, err := s.GetBalance(ctx, userId)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	// Amounts are decimal text, so they are summed here rather than with SUM()
	rows, err := s.db.QueryContext(ctx, queryReconcileAmounts, userId)
	if err != nil {
		return storeFailure("load transaction amounts", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	calculatedBalance := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return storeFailure("scan transaction amount", err)
		}
		amount, err := parseDecimal("amount", amountStr)
		if err != nil {
			return err
		}
		calculatedBalance = calculatedBalance.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return storeFailure("iterate transaction amounts", err)
	}

	// Check if balances match (exact decimal comparison)
	if !currentBalance.Equal(calculatedBalance) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userId),
			zap.String("current_balance", currentBalance.String()),
			zap.String("calculated_balance", calculatedBalance.String()),
			zap.String("difference", currentBalance.Sub(calculatedBalance).String()))
		return fmt.Errorf("balance mismatch: current=%s, calculated=%s", currentBalance.String(), calculatedBalance.String())
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("balance", currentBalance.String()))
	return nil
}
