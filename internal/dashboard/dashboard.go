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

// Package dashboard aggregates a user's contracts, ledger and run state.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contract-run-go/internal/accrual"
	"contract-run-go/internal/clock"
	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const totalsPrecision = 2

// WithdrawWindow is a UTC time-of-day gate. When StartHour > EndHour the
// window spans midnight, e.g. 23 to 1 is open from 23:00 until 00:59:59.
type WithdrawWindow struct {
	StartHour int
	EndHour   int
}

func DefaultWithdrawWindow() WithdrawWindow {
	return WithdrawWindow{StartHour: 23, EndHour: 1}
}

func (w WithdrawWindow) Open(t time.Time) bool {
	hour := t.UTC().Hour()
	if w.StartHour == w.EndHour {
		return true
	}
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// Refunder settles matured contracts before totals are computed
type Refunder interface {
	ProcessRefunds(ctx context.Context, userId string) (int, error)
}

// Store is what the aggregator reads
type Store interface {
	GetContracts(ctx context.Context, userId string) ([]models.Contract, error)
	GetActiveSession(ctx context.Context, userId string) (*models.RunSession, error)
	GetUserBalance(ctx context.Context, userId string) (decimal.Decimal, error)
	GetWithdrawals(ctx context.Context, userId string) ([]models.Withdrawal, error)
}

type Aggregator struct {
	store    Store
	refunder Refunder
	clock    clock.Clock
	policy   accrual.Policy
	window   WithdrawWindow
}

func NewAggregator(st Store, refunder Refunder, clk clock.Clock, policy accrual.Policy, window WithdrawWindow) *Aggregator {
	return &Aggregator{store: st, refunder: refunder, clock: clk, policy: policy, window: window}
}

// Build refunds matured contracts and then returns the user's dashboard
func (a *Aggregator) Build(ctx context.Context, userId string) (*models.Dashboard, error) {
	refunds, err := a.refunder.ProcessRefunds(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	contracts, err := a.store.GetContracts(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	now := a.clock.Now()
	total := decimal.Zero
	summaries := make([]models.ContractSummary, 0, len(contracts))
	for _, c := range contracts {
		nominal := a.policy.NominalValue(c, now)
		total = total.Add(nominal)
		summaries = append(summaries, models.ContractSummary{
			Id:           c.Id,
			Principal:    c.Principal,
			Status:       c.Status,
			NominalValue: nominal.Round(totalsPrecision),
			StartTime:    c.StartTime,
			EndTime:      c.EndTime,
			RefundedAt:   c.RefundedAt,
		})
	}

	withdrawals, err := a.store.GetWithdrawals(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}
	withdrawn := decimal.Zero
	for _, w := range withdrawals {
		withdrawn = withdrawn.Add(w.Amount)
	}

	available, err := a.store.GetUserBalance(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	dashboard := &models.Dashboard{
		ContractCount:      len(contracts),
		TotalBalance:       total.Round(totalsPrecision),
		Withdrawn:          withdrawn.Round(totalsPrecision),
		Available:          available.Round(totalsPrecision),
		Contracts:          summaries,
		WithdrawWindowOpen: a.window.Open(now),
		RefundsProcessed:   refunds,
	}

	session, err := a.store.GetActiveSession(ctx, userId)
	switch {
	case err == nil:
		dashboard.ActiveRunContractId = session.ContractId
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("build dashboard: %w", err)
	}

	zap.L().Debug("Dashboard built",
		zap.String("user_id", userId),
		zap.Int("contracts", dashboard.ContractCount),
		zap.String("total_balance", dashboard.TotalBalance.String()),
		zap.String("available", dashboard.Available.String()))

	return dashboard, nil
}
