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

package api

import (
	"context"
	"errors"
	"fmt"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Withdraw debits amount from the withdrawable balance. It is only accepted
// inside the UTC withdrawal window and never overdraws the ledger.
func (s *LedgerService) Withdraw(ctx context.Context, userId string, amount decimal.Decimal, wallet string) (*models.WithdrawalResult, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}
	if !amount.IsPositive() || wallet == "" {
		return nil, fmt.Errorf("%w: a positive amount and a wallet are required", ErrInvalidRequest)
	}

	now := s.clock.Now()
	if !s.window.Open(now) {
		zap.L().Info("Withdrawal outside window",
			zap.String("user_id", userId),
			zap.Int("window_start_hour", s.window.StartHour),
			zap.Int("window_end_hour", s.window.EndHour))
		return nil, fmt.Errorf("%w: withdrawals are accepted between %02d:00 and %02d:00 UTC",
			ErrWithdrawWindowClosed, s.window.StartHour, s.window.EndHour)
	}

	unlock := s.locks.Lock(userId)
	defer unlock()

	zap.L().Info("Processing withdrawal",
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("wallet", wallet))

	withdrawal, newBalance, err := s.store.RecordWithdrawal(ctx, store.WithdrawalParams{
		UserId: userId,
		Amount: amount,
		Wallet: wallet,
		At:     now,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			zap.L().Info("Withdrawal exceeds balance", zap.String("user_id", userId), zap.String("amount", amount.String()))
		} else {
			zap.L().Error("Withdrawal processing failed",
				zap.String("user_id", userId),
				zap.String("amount", amount.String()),
				zap.Error(err))
		}
		return nil, err
	}

	s.metrics.WithdrawalRecorded(amount)
	zap.L().Info("Withdrawal processed successfully",
		zap.String("user_id", userId),
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()))

	return &models.WithdrawalResult{
		WithdrawalId: withdrawal.Id,
		Amount:       withdrawal.Amount,
		Wallet:       withdrawal.Wallet,
		NewBalance:   newBalance,
	}, nil
}
