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

// Package run drives run sessions through NONE -> ACTIVE -> ENDED. All
// accrual happens lazily when a client calls in; nothing here runs on a timer.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contract-run-go/internal/accrual"
	"contract-run-go/internal/clock"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/models"
	"contract-run-go/internal/store"
	"contract-run-go/internal/userlock"

	"go.uber.org/zap"
)

const (
	DefaultChunkInterval = 10 * time.Minute
	DefaultMaxDuration   = 22 * time.Hour

	msgNoActiveRun   = "no active run"
	msgNothingToStop = "nothing to stop"
)

// Store is the persistence the manager needs
type Store interface {
	store.ContractStore
	store.SessionStore
}

type Config struct {
	ChunkInterval time.Duration
	MaxDuration   time.Duration
}

type Manager struct {
	store         Store
	clock         clock.Clock
	policy        accrual.Policy
	source        accrual.Source
	locks         *userlock.Locks
	metrics       metrics.Recorder
	chunkInterval time.Duration
	maxDuration   time.Duration
}

func NewManager(st Store, clk clock.Clock, policy accrual.Policy, src accrual.Source, locks *userlock.Locks, rec metrics.Recorder, cfg Config) *Manager {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	if src == nil {
		src = accrual.GlobalSource{}
	}
	return &Manager{
		store:         st,
		clock:         clk,
		policy:        policy,
		source:        src,
		locks:         locks,
		metrics:       rec,
		chunkInterval: cfg.ChunkInterval,
		maxDuration:   cfg.MaxDuration,
	}
}

// Start opens a run session on contractId. A session left open past its
// maximum duration is expired first so it never blocks a new run.
func (m *Manager) Start(ctx context.Context, userId, contractId string) (*models.StartedRun, error) {
	unlock := m.locks.Lock(userId)
	defer unlock()

	contract, err := m.store.GetContract(ctx, userId, contractId)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	now := m.clock.Now()
	if contract.Status != models.ContractActive {
		return nil, fmt.Errorf("start run: %w: contract %s is %s", store.ErrInvalidState, contractId, contract.Status)
	}
	if contract.Matured(now) {
		return nil, fmt.Errorf("start run: %w: contract %s term ended at %s", store.ErrInvalidState, contractId, contract.EndTime.Format(time.RFC3339))
	}

	if active, err := m.store.GetActiveSession(ctx, userId); err == nil {
		if _, err := m.lazyFinalize(ctx, active, now); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("start run: %w", err)
	}

	session, err := m.store.CreateSession(ctx, store.CreateSessionParams{
		UserId:     userId,
		ContractId: contractId,
		Principal:  contract.Principal,
		StartedAt:  now,
	})
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			zap.L().Info("Run already active",
				zap.String("user_id", userId),
				zap.String("contract_id", conflict.ContractId),
				zap.String("session_id", conflict.SessionId))
		}
		return nil, fmt.Errorf("start run: %w", err)
	}

	m.metrics.RunStarted()
	zap.L().Info("Run started",
		zap.String("user_id", userId),
		zap.String("session_id", session.Id),
		zap.String("contract_id", contractId),
		zap.String("principal", session.Principal.String()))

	return &models.StartedRun{
		SessionId:  session.Id,
		ContractId: session.ContractId,
		StartedAt:  session.StartedAt,
		MaxHours:   int(m.maxDuration / time.Hour),
	}, nil
}

// Heartbeat credits every chunk due since the last call. An empty sessionId
// means the user's sole active session.
func (m *Manager) Heartbeat(ctx context.Context, userId, sessionId string) (models.RunResult, error) {
	unlock := m.locks.Lock(userId)
	defer unlock()

	session, result, err := m.resolve(ctx, userId, sessionId, msgNoActiveRun)
	if err != nil || result != nil {
		return result, err
	}

	now := m.clock.Now()
	session, chunks, ended, err := m.catchUp(ctx, session, now)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	if ended {
		return endedResult(session), nil
	}

	if err := m.store.TouchSession(ctx, session.Id, now); err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	zap.L().Debug("Heartbeat processed",
		zap.String("user_id", userId),
		zap.String("session_id", session.Id),
		zap.Int("chunks", chunks),
		zap.String("earnings_added", session.EarningsAdded.String()))

	return m.activeResult(session, chunks, now), nil
}

// Stop catches up, credits one final chunk clamped to the cap and ends the
// session. Stopping nothing is not an error.
func (m *Manager) Stop(ctx context.Context, userId, sessionId string) (models.RunResult, error) {
	unlock := m.locks.Lock(userId)
	defer unlock()

	session, result, err := m.resolve(ctx, userId, sessionId, msgNothingToStop)
	if err != nil {
		return nil, err
	}
	if result != nil {
		// An already-ended session has nothing left to stop
		return models.NoActiveRun{Message: msgNothingToStop}, nil
	}

	return m.stop(ctx, session, models.EndReasonStopped)
}

// Status reports the user's current run. Lazy expiry is the only write it
// may perform.
func (m *Manager) Status(ctx context.Context, userId string) (models.RunResult, error) {
	unlock := m.locks.Lock(userId)
	defer unlock()

	session, err := m.store.GetActiveSession(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.NoActiveRun{Message: msgNoActiveRun}, nil
		}
		return nil, fmt.Errorf("run status: %w", err)
	}

	now := m.clock.Now()
	ended, err := m.lazyFinalize(ctx, session, now)
	if err != nil {
		return nil, fmt.Errorf("run status: %w", err)
	}
	if ended != nil {
		return endedResult(ended), nil
	}

	chunks, err := m.store.CountChunks(ctx, session.Id)
	if err != nil {
		return nil, fmt.Errorf("run status: %w", err)
	}
	return m.activeResult(session, chunks, now), nil
}

// StopContract ends any run on the contract and marks it stopped
func (m *Manager) StopContract(ctx context.Context, userId, contractId string) (models.RunResult, error) {
	unlock := m.locks.Lock(userId)
	defer unlock()

	contract, err := m.store.GetContract(ctx, userId, contractId)
	if err != nil {
		return nil, fmt.Errorf("stop contract: %w", err)
	}
	if contract.Status == models.ContractRefunded {
		return nil, fmt.Errorf("stop contract: %w: contract %s is already refunded", store.ErrInvalidState, contractId)
	}

	var result models.RunResult = models.NoActiveRun{Message: msgNothingToStop}
	session, err := m.store.GetActiveSession(ctx, userId)
	switch {
	case err == nil && session.ContractId == contractId:
		if result, err = m.stop(ctx, session, models.EndReasonContractStopped); err != nil {
			return nil, err
		}
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("stop contract: %w", err)
	}

	if contract.Status != models.ContractStopped {
		if err := m.store.UpdateContractStatus(ctx, userId, contractId, models.ContractStopped); err != nil {
			return nil, fmt.Errorf("stop contract: %w", err)
		}
		zap.L().Info("Contract stopped", zap.String("user_id", userId), zap.String("contract_id", contractId))
	}
	return result, nil
}

// resolve finds the session a call refers to. A non-nil result means the
// caller should return it as is.
func (m *Manager) resolve(ctx context.Context, userId, sessionId, noneMessage string) (*models.RunSession, models.RunResult, error) {
	if sessionId == "" {
		session, err := m.store.GetActiveSession(ctx, userId)
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.NoActiveRun{Message: noneMessage}, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return session, nil, nil
	}

	session, err := m.store.GetSession(ctx, userId, sessionId)
	if err != nil {
		return nil, nil, err
	}
	if !session.Active() {
		return nil, endedResult(session), nil
	}
	return session, nil, nil
}

// catchUp credits chunks from the persisted count up to the number due at
// now, finalizing on expiry or when the cap leaves no room.
func (m *Manager) catchUp(ctx context.Context, session *models.RunSession, now time.Time) (*models.RunSession, int, bool, error) {
	if ended, err := m.lazyFinalize(ctx, session, now); err != nil || ended != nil {
		return ended, 0, ended != nil, err
	}

	elapsed := now.Sub(session.StartedAt)
	limit := m.policy.MaxEarnings(session.Principal, elapsed)

	chunks, err := m.store.CountChunks(ctx, session.Id)
	if err != nil {
		return nil, 0, false, err
	}

	due := int(elapsed / m.chunkInterval)
	for index := chunks; index < due; index++ {
		amount := accrual.Clamp(m.policy.ChunkAmount(session.Principal, m.source), session.EarningsAdded, limit)
		if !amount.IsPositive() {
			ended, err := m.finalize(ctx, session, now, models.EndReasonCapReached, nil)
			return ended, chunks, err == nil, err
		}

		updated, err := m.store.CreditChunk(ctx, store.CreditChunkParams{
			SessionId:  session.Id,
			UserId:     session.UserId,
			ChunkIndex: index,
			Amount:     amount,
			At:         now,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicateTransaction) {
				// Someone else credited this index; take their view and stop here
				zap.L().Warn("Chunk already credited", zap.String("session_id", session.Id), zap.Int("chunk_index", index))
				reloaded, getErr := m.store.GetSession(ctx, session.UserId, session.Id)
				if getErr != nil {
					return nil, chunks, false, getErr
				}
				count, countErr := m.store.CountChunks(ctx, session.Id)
				if countErr != nil {
					return nil, chunks, false, countErr
				}
				return reloaded, count, !reloaded.Active(), nil
			}
			return nil, chunks, false, err
		}

		session = updated
		chunks = index + 1
		m.metrics.ChunkCredited(amount)
		zap.L().Info("Chunk credited",
			zap.String("user_id", session.UserId),
			zap.String("session_id", session.Id),
			zap.Int("chunk_index", index),
			zap.String("amount", amount.String()),
			zap.String("earnings_added", session.EarningsAdded.String()))
	}

	return session, chunks, false, nil
}

// lazyFinalize ends the session when it has run for MaxDuration or its
// earnings already meet the cap. It returns nil when the session stays open.
func (m *Manager) lazyFinalize(ctx context.Context, session *models.RunSession, now time.Time) (*models.RunSession, error) {
	elapsed := now.Sub(session.StartedAt)
	if elapsed >= m.maxDuration {
		return m.finalize(ctx, session, now, models.EndReasonExpired, nil)
	}

	limit := m.policy.MaxEarnings(session.Principal, elapsed)
	if session.EarningsAdded.IsPositive() && session.EarningsAdded.GreaterThanOrEqual(limit) {
		return m.finalize(ctx, session, now, models.EndReasonCapReached, nil)
	}
	return nil, nil
}

func (m *Manager) stop(ctx context.Context, session *models.RunSession, reason string) (models.RunResult, error) {
	now := m.clock.Now()
	session, chunks, ended, err := m.catchUp(ctx, session, now)
	if err != nil {
		return nil, fmt.Errorf("stop run: %w", err)
	}
	if ended {
		return endedResult(session), nil
	}

	limit := m.policy.MaxEarnings(session.Principal, now.Sub(session.StartedAt))
	amount := accrual.Clamp(m.policy.ChunkAmount(session.Principal, m.source), session.EarningsAdded, limit)

	var final *store.CreditChunkParams
	if amount.IsPositive() {
		final = &store.CreditChunkParams{
			SessionId:  session.Id,
			UserId:     session.UserId,
			ChunkIndex: chunks,
			Amount:     amount,
			At:         now,
		}
	}

	endedSession, err := m.finalize(ctx, session, now, reason, final)
	if err != nil {
		return nil, fmt.Errorf("stop run: %w", err)
	}
	if final != nil {
		m.metrics.ChunkCredited(amount)
	}
	return endedResult(endedSession), nil
}

func (m *Manager) finalize(ctx context.Context, session *models.RunSession, now time.Time, reason string, final *store.CreditChunkParams) (*models.RunSession, error) {
	ended, err := m.store.FinalizeSession(ctx, store.FinalizeSessionParams{
		SessionId:  session.Id,
		EndedAt:    now,
		EndReason:  reason,
		FinalChunk: final,
	})
	if err != nil {
		zap.L().Error("Failed to finalize run session",
			zap.String("user_id", session.UserId),
			zap.String("session_id", session.Id),
			zap.String("end_reason", reason),
			zap.Error(err))
		return nil, err
	}

	m.metrics.RunEnded(reason)
	zap.L().Info("Run ended",
		zap.String("user_id", ended.UserId),
		zap.String("session_id", ended.Id),
		zap.String("contract_id", ended.ContractId),
		zap.String("end_reason", reason),
		zap.String("earnings_added", ended.EarningsAdded.String()))
	return ended, nil
}

func (m *Manager) activeResult(session *models.RunSession, chunks int, now time.Time) models.ActiveRun {
	remaining := m.maxDuration - now.Sub(session.StartedAt)
	if remaining < 0 {
		remaining = 0
	}
	return models.ActiveRun{
		SessionId:        session.Id,
		ContractId:       session.ContractId,
		StartedAt:        session.StartedAt,
		EarningsSoFar:    session.EarningsAdded,
		ChunksCredited:   chunks,
		RemainingSeconds: int64(remaining / time.Second),
	}
}

func endedResult(session *models.RunSession) models.EndedRun {
	result := models.EndedRun{
		SessionId:     session.Id,
		ContractId:    session.ContractId,
		EndReason:     session.EndReason,
		EarningsAdded: session.EarningsAdded,
	}
	if session.EndedAt != nil {
		result.EndedAt = *session.EndedAt
	}
	return result
}
