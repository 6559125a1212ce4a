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

package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus tags the variant of a RunResult
type RunStatus string

const (
	RunStatusActive RunStatus = "active"
	RunStatusEnded  RunStatus = "ended"
	RunStatusNone   RunStatus = "none"
)

// RunResult is returned by heartbeat, stop and status. Exactly one of
// ActiveRun, EndedRun or NoActiveRun.
type RunResult interface {
	Status() RunStatus
	isRunResult()
}

// StartedRun is the result of starting a run session
type StartedRun struct {
	SessionId  string    `json:"session_id"`
	ContractId string    `json:"contract_id"`
	StartedAt  time.Time `json:"started_at"`
	MaxHours   int       `json:"max_hours"`
}

// ActiveRun describes a session that is still accruing
type ActiveRun struct {
	SessionId        string          `json:"session_id"`
	ContractId       string          `json:"contract_id"`
	StartedAt        time.Time       `json:"started_at"`
	EarningsSoFar    decimal.Decimal `json:"earnings_so_far"`
	ChunksCredited   int             `json:"chunks_credited"`
	RemainingSeconds int64           `json:"remaining_seconds"`
}

// EndedRun describes a finalized session
type EndedRun struct {
	SessionId     string          `json:"session_id"`
	ContractId    string          `json:"contract_id"`
	EndedAt       time.Time       `json:"ended_at"`
	EndReason     string          `json:"end_reason"`
	EarningsAdded decimal.Decimal `json:"earnings_added"`
}

// NoActiveRun is the normal poll-miss result: nothing to heartbeat or stop
type NoActiveRun struct {
	Message string `json:"message"`
}

func (ActiveRun) Status() RunStatus   { return RunStatusActive }
func (EndedRun) Status() RunStatus    { return RunStatusEnded }
func (NoActiveRun) Status() RunStatus { return RunStatusNone }

func (ActiveRun) isRunResult()   {}
func (EndedRun) isRunResult()    {}
func (NoActiveRun) isRunResult() {}

func (r ActiveRun) MarshalJSON() ([]byte, error) {
	type alias ActiveRun
	return json.Marshal(struct {
		Status RunStatus `json:"status"`
		Active bool      `json:"active"`
		alias
	}{RunStatusActive, true, alias(r)})
}

func (r EndedRun) MarshalJSON() ([]byte, error) {
	type alias EndedRun
	return json.Marshal(struct {
		Status RunStatus `json:"status"`
		Active bool      `json:"active"`
		Ended  bool      `json:"ended"`
		alias
	}{RunStatusEnded, false, true, alias(r)})
}

func (r NoActiveRun) MarshalJSON() ([]byte, error) {
	type alias NoActiveRun
	return json.Marshal(struct {
		Status RunStatus `json:"status"`
		Active bool      `json:"active"`
		alias
	}{RunStatusNone, false, alias(r)})
}

// ContractSummary is a contract as shown on the dashboard
type ContractSummary struct {
	Id           string          `json:"id"`
	Principal    decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	NominalValue decimal.Decimal `json:"nominal_value"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	RefundedAt   *time.Time      `json:"refunded_at,omitempty"`
}

// Dashboard is the read-only aggregate shown to a user
type Dashboard struct {
	ContractCount       int               `json:"contracts"`
	TotalBalance        decimal.Decimal   `json:"total_balance"`
	Withdrawn           decimal.Decimal   `json:"withdrawn"`
	Available           decimal.Decimal   `json:"available"`
	Contracts           []ContractSummary `json:"contract_list"`
	ActiveRunContractId string            `json:"active_run_contract_id,omitempty"`
	WithdrawWindowOpen  bool              `json:"withdraw_window_open"`
	RefundsProcessed    int               `json:"refunds_processed"`
}

// TransactionRecord represents a transaction in the user's history
type TransactionRecord struct {
	Id          string          `json:"id"`
	Type        string          `json:"type"` // "accrual", "refund", "withdrawal"
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Status      string          `json:"status"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// WithdrawalResult represents the result of submitting a withdrawal
type WithdrawalResult struct {
	WithdrawalId string          `json:"withdrawal_id"`
	Amount       decimal.Decimal `json:"amount"`
	Wallet       string          `json:"wallet"`
	NewBalance   decimal.Decimal `json:"new_balance"`
}
