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

	"contract-run-go/internal/models"

	"go.uber.org/zap"
)

// GetDashboard refunds matured contracts and returns the user's totals
func (s *LedgerService) GetDashboard(ctx context.Context, userId string) (*models.Dashboard, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}

	d, err := s.dashboard.Build(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to build dashboard", zap.String("user_id", userId), zap.Error(err))
		return nil, err
	}
	return d, nil
}

// GetTransactionHistory returns paginated ledger history for a user
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.TransactionRecord, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.store.GetTransactionHistory(ctx, userId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, err
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Id:          tx.Id,
			Type:        tx.TransactionType,
			Amount:      tx.Amount,
			Reference:   tx.Reference,
			Status:      tx.Status,
			ProcessedAt: tx.CreatedAt,
		}
	}

	return result, nil
}
