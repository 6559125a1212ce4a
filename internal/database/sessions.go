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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanSession(row rowScanner) (*models.RunSession, error) {
	var rs models.RunSession
	var principalStr, earningsStr string
	var endedAt, lastHeartbeatAt sql.NullTime
	if err := row.Scan(&rs.Id, &rs.UserId, &rs.ContractId, &principalStr, &rs.StartedAt,
		&endedAt, &rs.EndReason, &lastHeartbeatAt, &earningsStr); err != nil {
		return nil, err
	}

	var err error
	if rs.Principal, err = parseDecimal("principal", principalStr); err != nil {
		return nil, err
	}
	if rs.EarningsAdded, err = parseDecimal("earnings_added", earningsStr); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		rs.EndedAt = &t
	}
	if lastHeartbeatAt.Valid {
		t := lastHeartbeatAt.Time
		rs.LastHeartbeatAt = &t
	}
	return &rs, nil
}

// sessionQueryError maps a scan error to the store taxonomy
func sessionQueryError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}
	if errors.Is(err, store.ErrStoreFailure) {
		return err
	}
	return storeFailure("query "+what, err)
}

// CreateSession opens a run session. It fails with a *store.ConflictError
// naming the other contract when the user already has an open session.
func (s *Service) CreateSession(ctx context.Context, params store.CreateSessionParams) (*models.RunSession, error) {
	session := &models.RunSession{
		Id:            uuid.New().String(),
		UserId:        params.UserId,
		ContractId:    params.ContractId,
		Principal:     params.Principal,
		StartedAt:     params.StartedAt.UTC(),
		EarningsAdded: decimal.Zero,
	}

	err := s.withTx(ctx, "create session", func(tx *sql.Tx) error {
		existing, err := scanSession(tx.QueryRowContext(ctx, queryGetActiveSession, params.UserId))
		if err == nil {
			return &store.ConflictError{SessionId: existing.Id, ContractId: existing.ContractId}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return sessionQueryError(err, "active session")
		}

		_, err = tx.ExecContext(ctx, queryInsertSession,
			session.Id, session.UserId, session.ContractId, session.Principal.String(), session.StartedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: user %s already has an open session", store.ErrConflict, params.UserId)
			}
			return storeFailure("insert session", err)
		}
		return nil
	})
	if err != nil {
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) && errors.Is(err, store.ErrConflict) {
			// Lost the race on the partial unique index; report the winner
			if active, getErr := s.GetActiveSession(ctx, params.UserId); getErr == nil {
				return nil, &store.ConflictError{SessionId: active.Id, ContractId: active.ContractId}
			}
		}
		return nil, err
	}

	zap.L().Info("Run session created",
		zap.String("user_id", session.UserId),
		zap.String("session_id", session.Id),
		zap.String("contract_id", session.ContractId))
	return session, nil
}

// GetSession returns the session only if it belongs to userId
func (s *Service) GetSession(ctx context.Context, userId, sessionId string) (*models.RunSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, queryGetUserSession, sessionId, userId))
	if err != nil {
		return nil, sessionQueryError(err, "session "+sessionId)
	}
	return session, nil
}

func (s *Service) GetActiveSession(ctx context.Context, userId string) (*models.RunSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, queryGetActiveSession, userId))
	if err != nil {
		return nil, sessionQueryError(err, "active session for user "+userId)
	}
	return session, nil
}

func (s *Service) GetUsersWithActiveSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUsersWithActiveSessions)
	if err != nil {
		return nil, storeFailure("query users with active sessions", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var userIds []string
	for rows.Next() {
		var userId string
		if err := rows.Scan(&userId); err != nil {
			return nil, storeFailure("scan user id", err)
		}
		userIds = append(userIds, userId)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure("iterate user ids", err)
	}
	return userIds, nil
}

func (s *Service) CountChunks(ctx context.Context, sessionId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountChunks, sessionId).Scan(&count); err != nil {
		return 0, storeFailure("count chunks", err)
	}
	return count, nil
}

func (s *Service) GetChunks(ctx context.Context, sessionId string) ([]models.AccrualChunk, error) {
	rows, err := s.db.QueryContext(ctx, queryGetChunks, sessionId)
	if err != nil {
		return nil, storeFailure("query chunks", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var chunks []models.AccrualChunk
	for rows.Next() {
		var c models.AccrualChunk
		var amountStr string
		if err := rows.Scan(&c.Id, &c.SessionId, &c.ChunkIndex, &amountStr, &c.CreatedAt); err != nil {
			return nil, storeFailure("scan chunk", err)
		}
		if c.Amount, err = parseDecimal("amount", amountStr); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFailure("iterate chunk rows", err)
	}
	return chunks, nil
}

// CreditChunk persists the chunk row, bumps earnings_added and credits the
// ledger in one transaction.
func (s *Service) CreditChunk(ctx context.Context, params store.CreditChunkParams) (*models.RunSession, error) {
	var session *models.RunSession
	err := s.withTx(ctx, "credit chunk", func(tx *sql.Tx) error {
		current, err := s.loadOpenSession(ctx, tx, params.UserId, params.SessionId)
		if err != nil {
			return err
		}
		session, err = s.creditChunkTx(ctx, tx, current, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// FinalizeSession ends an open session, optionally crediting one last chunk
// in the same transaction.
func (s *Service) FinalizeSession(ctx context.Context, params store.FinalizeSessionParams) (*models.RunSession, error) {
	var session *models.RunSession
	err := s.withTx(ctx, "finalize session", func(tx *sql.Tx) error {
		userId := ""
		if params.FinalChunk != nil {
			userId = params.FinalChunk.UserId
		}
		current, err := s.loadOpenSession(ctx, tx, userId, params.SessionId)
		if err != nil {
			return err
		}

		if params.FinalChunk != nil && params.FinalChunk.Amount.IsPositive() {
			if current, err = s.creditChunkTx(ctx, tx, current, *params.FinalChunk); err != nil {
				return err
			}
		}

		endedAt := params.EndedAt.UTC()
		result, err := tx.ExecContext(ctx, queryFinalizeSession, endedAt, params.EndReason, endedAt, params.SessionId)
		if err != nil {
			return storeFailure("finalize session", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return storeFailure("check rows affected", err)
		} else if n == 0 {
			return fmt.Errorf("%w: session %s already ended", store.ErrInvalidState, params.SessionId)
		}

		current.EndedAt = &endedAt
		current.EndReason = params.EndReason
		current.LastHeartbeatAt = &endedAt
		session = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Run session finalized",
		zap.String("user_id", session.UserId),
		zap.String("session_id", session.Id),
		zap.String("end_reason", session.EndReason),
		zap.String("earnings_added", session.EarningsAdded.String()))
	return session, nil
}

func (s *Service) TouchSession(ctx context.Context, sessionId string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, queryTouchSession, at.UTC(), sessionId); err != nil {
		return storeFailure("touch session", err)
	}
	return nil
}

// loadOpenSession reads a session inside tx. An empty userId skips the
// ownership check.
func (s *Service) loadOpenSession(ctx context.Context, tx *sql.Tx, userId, sessionId string) (*models.RunSession, error) {
	session, err := scanSession(tx.QueryRowContext(ctx, queryGetSession, sessionId))
	if err != nil {
		return nil, sessionQueryError(err, "session "+sessionId)
	}
	if userId != "" && session.UserId != userId {
		return nil, fmt.Errorf("%w: session %s", store.ErrNotFound, sessionId)
	}
	if !session.Active() {
		return nil, fmt.Errorf("%w: session %s already ended", store.ErrInvalidState, sessionId)
	}
	return session, nil
}

func (s *Service) creditChunkTx(ctx context.Context, tx *sql.Tx, session *models.RunSession, params store.CreditChunkParams) (*models.RunSession, error) {
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: chunk amount must be positive, got %s", store.ErrInvalidState, params.Amount.String())
	}
	at := params.At.UTC()

	_, err := tx.ExecContext(ctx, queryInsertChunk,
		uuid.New().String(), session.Id, params.ChunkIndex, params.Amount.String(), at)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: chunk %d of session %s already credited", store.ErrDuplicateTransaction, params.ChunkIndex, session.Id)
		}
		return nil, storeFailure("insert chunk", err)
	}

	earnings := session.EarningsAdded.Add(params.Amount)
	if _, err := tx.ExecContext(ctx, queryUpdateSessionEarnings, earnings.String(), at, session.Id); err != nil {
		return nil, storeFailure("update session earnings", err)
	}

	_, err = s.subledger.applyTransaction(ctx, tx, store.LedgerParams{
		UserId:          session.UserId,
		TransactionType: models.TransactionAccrual,
		Amount:          params.Amount,
		IdempotencyKey:  fmt.Sprintf("chunk:%s:%d", session.Id, params.ChunkIndex),
		Reference:       fmt.Sprintf("run session %s chunk %d", session.Id, params.ChunkIndex),
		At:              at,
	})
	if err != nil {
		return nil, err
	}

	updated := *session
	updated.EarningsAdded = earnings
	updated.LastHeartbeatAt = &at
	return &updated, nil
}
