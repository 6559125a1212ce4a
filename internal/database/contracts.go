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
	"time"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*models.Contract, error) {
	var c models.Contract
	var principalStr string
	var refundedAt sql.NullTime
	if err := row.Scan(&c.Id, &c.UserId, &principalStr, &c.Status, &c.DurationDays,
		&c.StartTime, &c.EndTime, &refundedAt, &c.PaymentReference, &c.CreatedAt); err != nil {
		return nil, err
	}

	principal, err := parseDecimal("principal", principalStr)
	if err != nil {
		return nil, err
	}
	c.Principal = principal
	if refundedAt.Valid {
		t := refundedAt.Time
		c.RefundedAt = &t
	}
	return &c, nil
}

func termEnd(start time.Time, durationDays int) time.Time {
	return start.Add(time.Duration(durationDays) * 24 * time.Hour)
}

func (s *Service) CreateContract(ctx context.Context, params store.CreateContractParams) (*models.Contract, error) {
	if params.DurationDays <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d days", store.ErrInvalidState, params.DurationDays)
	}
	if params.Principal.IsNegative() {
		return nil, fmt.Errorf("%w: principal cannot be negative", store.ErrInvalidState)
	}
	status := params.Status
	if status == "" {
		status = models.ContractPending
	}
	if status != models.ContractPending && status != models.ContractActive {
		return nil, fmt.Errorf("%w: contracts are created pending or active, got %s", store.ErrInvalidState, status)
	}

	createdAt := params.StartTime.UTC()
	if params.StartTime.IsZero() {
		createdAt = time.Now().UTC()
	}

	contract := &models.Contract{
		Id:               uuid.New().String(),
		UserId:           params.UserId,
		Principal:        params.Principal,
		Status:           status,
		DurationDays:     params.DurationDays,
		StartTime:        params.StartTime.UTC(),
		EndTime:          termEnd(params.StartTime.UTC(), params.DurationDays),
		PaymentReference: params.PaymentReference,
		CreatedAt:        createdAt,
	}

	_, err := s.db.ExecContext(ctx, queryInsertContract,
		contract.Id, contract.UserId, contract.Principal.String(), contract.Status, contract.DurationDays,
		contract.StartTime, contract.EndTime, contract.PaymentReference, contract.CreatedAt)
	if err != nil {
		zap.L().Error("Failed to insert contract", zap.String("user_id", params.UserId), zap.Error(err))
		return nil, storeFailure("insert contract", err)
	}

	zap.L().Info("Contract created",
		zap.String("user_id", contract.UserId),
		zap.String("contract_id", contract.Id),
		zap.String("principal", contract.Principal.String()),
		zap.String("status", contract.Status),
		zap.Int("duration_days", contract.DurationDays))

	return contract, nil
}

// GetContract returns the contract only if it belongs to userId
func (s *Service) GetContract(ctx context.Context, userId, contractId string) (*models.Contract, error) {
	zap.L().Debug("Querying contract", zap.String("user_id", userId), zap.String("contract_id", contractId))

	contract, err := scanContract(s.db.QueryRowContext(ctx, queryGetContract, contractId, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: contract %s", store.ErrNotFound, contractId)
		}
		if errors.Is(err, store.ErrStoreFailure) {
			return nil, err
		}
		return nil, storeFailure("query contract", err)
	}
	return contract, nil
}

func (s *Service) GetContracts(ctx context.Context, userId string) ([]models.Contract, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUserContracts, userId)
	if err != nil {
		zap.L().Error("Failed to query contracts", zap.String("user_id", userId), zap.Error(err))
		return nil, storeFailure("query contracts", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var contracts []models.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			if errors.Is(err, store.ErrStoreFailure) {
				return nil, err
			}
			return nil, storeFailure("scan contract", err)
		}
		contracts = append(contracts, *contract)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during contract row iteration", zap.Error(err))
		return nil, storeFailure("iterate contract rows", err)
	}

	zap.L().Debug("Retrieved contracts", zap.String("user_id", userId), zap.Int("count", len(contracts)))
	return contracts, nil
}

// ActivateContract moves a pending contract to active and starts its term at at
func (s *Service) ActivateContract(ctx context.Context, userId, contractId string, at time.Time) (*models.Contract, error) {
	contract, err := s.GetContract(ctx, userId, contractId)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractPending {
		return nil, fmt.Errorf("%w: contract %s is %s", store.ErrInvalidState, contractId, contract.Status)
	}

	at = at.UTC()
	result, err := s.db.ExecContext(ctx, queryActivateContract, at, termEnd(at, contract.DurationDays), contractId, userId)
	if err != nil {
		return nil, storeFailure("activate contract", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, storeFailure("check rows affected", err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: contract %s is no longer pending", store.ErrInvalidState, contractId)
	}

	zap.L().Info("Contract activated", zap.String("user_id", userId), zap.String("contract_id", contractId))
	return s.GetContract(ctx, userId, contractId)
}

// UpdateContractStatus changes status for any non-refunded contract. Refunds
// go through RefundContract so that refunded_at and the credit stay paired.
func (s *Service) UpdateContractStatus(ctx context.Context, userId, contractId, status string) error {
	switch status {
	case models.ContractPending, models.ContractActive, models.ContractStopped:
	default:
		return fmt.Errorf("%w: cannot set contract status to %q", store.ErrInvalidState, status)
	}

	result, err := s.db.ExecContext(ctx, queryUpdateContractStatus, status, contractId, userId)
	if err != nil {
		return storeFailure("update contract status", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeFailure("check rows affected", err)
	}
	if n == 0 {
		if _, err := s.GetContract(ctx, userId, contractId); err != nil {
			return err
		}
		return fmt.Errorf("%w: contract %s is already refunded", store.ErrInvalidState, contractId)
	}

	zap.L().Info("Contract status updated",
		zap.String("user_id", userId),
		zap.String("contract_id", contractId),
		zap.String("status", status))
	return nil
}

func (s *Service) RefundContract(ctx context.Context, userId, contractId string, at time.Time) (bool, error) {
	refunded := false
	err := s.withTx(ctx, "refund contract", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryRefundContract, at.UTC(), contractId, userId)
		if err != nil {
			return storeFailure("mark contract refunded", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return storeFailure("check rows affected", err)
		}
		if n == 0 {
			return nil
		}

		contract, err := scanContract(tx.QueryRowContext(ctx, queryGetContract, contractId, userId))
		if err != nil {
			if errors.Is(err, store.ErrStoreFailure) {
				return err
			}
			return storeFailure("reload refunded contract", err)
		}

		_, err = s.subledger.applyTransaction(ctx, tx, store.LedgerParams{
			UserId:          userId,
			TransactionType: models.TransactionRefund,
			Amount:          contract.Principal,
			IdempotencyKey:  "refund:" + contractId,
			Reference:       fmt.Sprintf("contract %s matured", contractId),
			At:              at.UTC(),
		})
		if err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if refunded {
		zap.L().Info("Contract refunded",
			zap.String("user_id", userId),
			zap.String("contract_id", contractId))
	}
	return refunded, nil
}
