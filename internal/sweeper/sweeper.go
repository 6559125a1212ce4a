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

package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"contract-run-go/internal/models"

	"go.uber.org/zap"
)

// RunObserver finalizes a user's session as a side effect of observing it
type RunObserver interface {
	Status(ctx context.Context, userId string) (models.RunResult, error)
}

type Refunder interface {
	HasDueRefunds(ctx context.Context, userId string) (bool, error)
	ProcessRefunds(ctx context.Context, userId string) (int, error)
}

type Store interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUsersWithActiveSessions(ctx context.Context) ([]string, error)
}

// SweeperConfig contains configuration for Sweeper
type SweeperConfig struct {
	Runs     RunObserver
	Refunds  Refunder
	Store    Store
	Interval time.Duration
}

// Sweeper periodically settles sessions and refunds nobody is polling.
// It only calls the same lazy paths a client would.
type Sweeper struct {
	runs     RunObserver
	refunds  Refunder
	store    Store
	interval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

var ErrDisabled = errors.New("sweeper interval is zero")

func NewSweeper(cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		runs:     cfg.Runs,
		refunds:  cfg.Refunds,
		store:    cfg.Store,
		interval: cfg.Interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns ErrDisabled when the interval is
// not positive, in which case Stop is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		close(s.doneChan)
		return ErrDisabled
	}

	go s.pollLoop(ctx)

	zap.L().Info("Session sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop gracefully stops the sweeper
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	zap.L().Info("Session sweeper stopped")
}

func (s *Sweeper) pollLoop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepResult counts what one sweep touched
type SweepResult struct {
	SessionsObserved  int
	SessionsFinalized int
	RefundsProcessed  int
}

// Sweep runs a single pass over open sessions and refundable users
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	var mu sync.Mutex
	var wg sync.WaitGroup

	userIds, err := s.store.GetUsersWithActiveSessions(ctx)
	if err != nil {
		zap.L().Error("Failed to list users with active sessions", zap.Error(err))
	}

	for _, userId := range userIds {
		wg.Add(1)

		go func(userId string) {
			defer wg.Done()

			status, err := s.runs.Status(ctx, userId)
			if err != nil {
				zap.L().Error("Failed to observe session", zap.String("user_id", userId), zap.Error(err))
				return
			}

			mu.Lock()
			defer mu.Unlock()
			result.SessionsObserved++
			if ended, ok := status.(models.EndedRun); ok {
				result.SessionsFinalized++
				zap.L().Info("Sweeper finalized session",
					zap.String("user_id", userId),
					zap.String("session_id", ended.SessionId),
					zap.String("end_reason", ended.EndReason))
			}
		}(userId)
	}
	wg.Wait()

	users, err := s.store.GetUsers(ctx)
	if err != nil {
		zap.L().Error("Failed to list users for refunds", zap.Error(err))
		return result
	}

	for _, u := range users {
		due, err := s.refunds.HasDueRefunds(ctx, u.Id)
		if err != nil {
			zap.L().Error("Failed to check refunds", zap.String("user_id", u.Id), zap.Error(err))
			continue
		}
		if !due {
			continue
		}
		n, err := s.refunds.ProcessRefunds(ctx, u.Id)
		if err != nil {
			zap.L().Error("Failed to process refunds", zap.String("user_id", u.Id), zap.Error(err))
			continue
		}
		result.RefundsProcessed += n
	}

	zap.L().Debug("Sweep complete",
		zap.Int("sessions_observed", result.SessionsObserved),
		zap.Int("sessions_finalized", result.SessionsFinalized),
		zap.Int("refunds_processed", result.RefundsProcessed))

	return result
}
