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

// Package refund returns matured contract principal to the ledger.
package refund

import (
	"context"
	"fmt"
	"time"

	"contract-run-go/internal/clock"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/models"
	"contract-run-go/internal/store"
	"contract-run-go/internal/userlock"

	"go.uber.org/zap"
)

type Processor struct {
	store   store.ContractStore
	clock   clock.Clock
	locks   *userlock.Locks
	metrics metrics.Recorder
}

func NewProcessor(st store.ContractStore, clk clock.Clock, locks *userlock.Locks, rec metrics.Recorder) *Processor {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Processor{store: st, clock: clk, locks: locks, metrics: rec}
}

// ProcessRefunds refunds every active contract of userId whose term has
// ended. Each refund is guarded in the store, so repeated or concurrent calls
// credit a contract at most once. It returns how many contracts this call
// refunded.
func (p *Processor) ProcessRefunds(ctx context.Context, userId string) (int, error) {
	unlock := p.locks.Lock(userId)
	defer unlock()

	contracts, err := p.store.GetContracts(ctx, userId)
	if err != nil {
		return 0, fmt.Errorf("process refunds: %w", err)
	}

	now := p.clock.Now()
	refunded := 0
	for _, contract := range contracts {
		if !due(contract, now) {
			continue
		}

		ok, err := p.store.RefundContract(ctx, userId, contract.Id, now)
		if err != nil {
			zap.L().Error("Failed to refund contract",
				zap.String("user_id", userId),
				zap.String("contract_id", contract.Id),
				zap.Error(err))
			return refunded, fmt.Errorf("process refunds: %w", err)
		}
		if !ok {
			continue
		}

		refunded++
		p.metrics.RefundProcessed(contract.Principal)
		zap.L().Info("Refunded matured contract",
			zap.String("user_id", userId),
			zap.String("contract_id", contract.Id),
			zap.String("amount", contract.Principal.String()))
	}

	return refunded, nil
}

// HasDueRefunds reports whether any of the user's contracts await a refund
func (p *Processor) HasDueRefunds(ctx context.Context, userId string) (bool, error) {
	contracts, err := p.store.GetContracts(ctx, userId)
	if err != nil {
		return false, err
	}
	now := p.clock.Now()
	for _, contract := range contracts {
		if due(contract, now) {
			return true, nil
		}
	}
	return false, nil
}

func due(c models.Contract, now time.Time) bool {
	return c.Status == models.ContractActive && c.RefundedAt == nil && c.Matured(now)
}
