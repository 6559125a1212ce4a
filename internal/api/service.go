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

	"contract-run-go/internal/clock"
	"contract-run-go/internal/dashboard"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/run"
	"contract-run-go/internal/store"
	"contract-run-go/internal/userlock"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWithdrawWindowClosed = errors.New("withdrawal window is closed")
)

// LedgerService is the operation surface used by the HTTP server and cmds
type LedgerService struct {
	store     store.Store
	runs      *run.Manager
	dashboard *dashboard.Aggregator
	clock     clock.Clock
	locks     *userlock.Locks
	window    dashboard.WithdrawWindow
	metrics   metrics.Recorder
}

func NewLedgerService(
	st store.Store,
	runs *run.Manager,
	dash *dashboard.Aggregator,
	clk clock.Clock,
	locks *userlock.Locks,
	window dashboard.WithdrawWindow,
	rec metrics.Recorder,
) *LedgerService {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &LedgerService{
		store:     st,
		runs:      runs,
		dashboard: dash,
		clock:     clk,
		locks:     locks,
		window:    window,
		metrics:   rec,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func requireUser(userId string) error {
	if userId == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return nil
}
