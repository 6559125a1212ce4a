package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract statuses
const (
	ContractPending  = "pending"
	ContractActive   = "active"
	ContractStopped  = "stopped"
	ContractRefunded = "refunded"
)

// Run session end reasons
const (
	EndReasonStopped         = "stopped"
	EndReasonExpired         = "expired"
	EndReasonCapReached      = "cap_reached"
	EndReasonContractStopped = "contract_stopped"
)

// Ledger transaction types
const (
	TransactionAccrual    = "accrual"
	TransactionRefund     = "refund"
	TransactionWithdrawal = "withdrawal"
)

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Contract represents an interest-bearing principal owned by a user
type Contract struct {
	Id               string          `db:"id"`
	UserId           string          `db:"user_id"`
	Principal        decimal.Decimal `db:"principal"`
	Status           string          `db:"status"`
	DurationDays     int             `db:"duration_days"`
	StartTime        time.Time       `db:"start_time"`
	EndTime          time.Time       `db:"end_time"`
	RefundedAt       *time.Time      `db:"refunded_at"`
	PaymentReference string          `db:"payment_reference"`
	CreatedAt        time.Time       `db:"created_at"`
}

// Matured reports whether the contract term has elapsed at now.
func (c *Contract) Matured(now time.Time) bool {
	return !c.EndTime.After(now)
}

// RunSession is one heartbeat-polled accrual period against a contract.
// A session is terminal once EndedAt is set.
type RunSession struct {
	Id              string          `db:"id"`
	UserId          string          `db:"user_id"`
	ContractId      string          `db:"contract_id"`
	Principal       decimal.Decimal `db:"principal"`
	StartedAt       time.Time       `db:"started_at"`
	EndedAt         *time.Time      `db:"ended_at"`
	EndReason       string          `db:"end_reason"`
	LastHeartbeatAt *time.Time      `db:"last_heartbeat_at"`
	EarningsAdded   decimal.Decimal `db:"earnings_added"`
}

// Active reports whether the session has not been finalized
func (s *RunSession) Active() bool {
	return s.EndedAt == nil
}

// AccrualChunk is an immutable credit recorded against a run session
type AccrualChunk struct {
	Id         string          `db:"id"`
	SessionId  string          `db:"session_id"`
	ChunkIndex int             `db:"chunk_index"`
	Amount     decimal.Decimal `db:"amount"`
	CreatedAt  time.Time       `db:"created_at"`
}

// AccountBalance represents current balance state (hot data)
type AccountBalance struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	Balance           decimal.Decimal `db:"balance"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction represents immutable ledger history (cold data)
type Transaction struct {
	Id              string          `db:"id"`
	UserId          string          `db:"user_id"`
	TransactionType string          `db:"transaction_type"`
	Amount          decimal.Decimal `db:"amount"`
	BalanceBefore   decimal.Decimal `db:"balance_before"`
	BalanceAfter    decimal.Decimal `db:"balance_after"`
	IdempotencyKey  string          `db:"idempotency_key"`
	Reference       string          `db:"reference"`
	Status          string          `db:"status"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Withdrawal is a user's request to move withdrawable funds out of the ledger
type Withdrawal struct {
	Id        string          `db:"id"`
	UserId    string          `db:"user_id"`
	Amount    decimal.Decimal `db:"amount"`
	Wallet    string          `db:"wallet"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
}
