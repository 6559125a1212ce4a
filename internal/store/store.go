package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contract-run-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidState           = errors.New("invalid state")
	ErrStoreFailure           = errors.New("store failure")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInsufficientFunds      = errors.New("insufficient funds")
)

// ConflictError reports that a user already has an active run session.
// It matches ErrConflict with errors.Is.
type ConflictError struct {
	SessionId  string
	ContractId string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("run already active on contract %s (session %s)", e.ContractId, e.SessionId)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// CreateContractParams contains the parameters for recording a confirmed purchase.
type CreateContractParams struct {
	UserId           string
	Principal        decimal.Decimal
	Status           string
	DurationDays     int
	StartTime        time.Time
	PaymentReference string
}

// CreateSessionParams contains the parameters for opening a run session.
type CreateSessionParams struct {
	UserId     string
	ContractId string
	Principal  decimal.Decimal
	StartedAt  time.Time
}

// CreditChunkParams describes one accrual chunk. The chunk row, the session's
// earnings_added bump and the ledger credit are committed as one unit.
type CreditChunkParams struct {
	SessionId  string
	UserId     string
	ChunkIndex int
	Amount     decimal.Decimal
	At         time.Time
}

// FinalizeSessionParams ends a session. A nil FinalChunk ends it without
// crediting anything further.
type FinalizeSessionParams struct {
	SessionId  string
	EndedAt    time.Time
	EndReason  string
	FinalChunk *CreditChunkParams
}

// LedgerParams describes a single ledger mutation. Positive amounts credit,
// negative amounts debit. IdempotencyKey must be unique across the ledger.
type LedgerParams struct {
	UserId          string
	TransactionType string
	Amount          decimal.Decimal
	IdempotencyKey  string
	Reference       string
	At              time.Time
}

// WithdrawalParams contains the parameters for recording a withdrawal.
type WithdrawalParams struct {
	UserId string
	Amount decimal.Decimal
	Wallet string
	At     time.Time
}

// UserStore covers user identity records.
type UserStore interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)
}

// ContractStore covers contract records.
type ContractStore interface {
	CreateContract(ctx context.Context, params CreateContractParams) (*models.Contract, error)
	GetContract(ctx context.Context, userId, contractId string) (*models.Contract, error)
	GetContracts(ctx context.Context, userId string) ([]models.Contract, error)
	ActivateContract(ctx context.Context, userId, contractId string, at time.Time) (*models.Contract, error)
	UpdateContractStatus(ctx context.Context, userId, contractId, status string) error
	// RefundContract flips an active, unrefunded contract to refunded and
	// credits its principal in the same transaction. It returns false when
	// the contract was already refunded or is not active.
	RefundContract(ctx context.Context, userId, contractId string, at time.Time) (bool, error)
}

// SessionStore covers run sessions and their accrual chunks.
type SessionStore interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*models.RunSession, error)
	GetSession(ctx context.Context, userId, sessionId string) (*models.RunSession, error)
	GetActiveSession(ctx context.Context, userId string) (*models.RunSession, error)
	GetUsersWithActiveSessions(ctx context.Context) ([]string, error)
	CountChunks(ctx context.Context, sessionId string) (int, error)
	GetChunks(ctx context.Context, sessionId string) ([]models.AccrualChunk, error)
	CreditChunk(ctx context.Context, params CreditChunkParams) (*models.RunSession, error)
	TouchSession(ctx context.Context, sessionId string, at time.Time) error
	FinalizeSession(ctx context.Context, params FinalizeSessionParams) (*models.RunSession, error)
}

// LedgerStore covers the withdrawable balance and its history.
type LedgerStore interface {
	GetUserBalance(ctx context.Context, userId string) (decimal.Decimal, error)
	ProcessTransaction(ctx context.Context, params LedgerParams) (*models.Transaction, error)
	RecordWithdrawal(ctx context.Context, params WithdrawalParams) (*models.Withdrawal, decimal.Decimal, error)
	GetWithdrawals(ctx context.Context, userId string) ([]models.Withdrawal, error)
	GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.Transaction, error)
	ReconcileUserBalance(ctx context.Context, userId string) error
}

// Store is the contract that every backend must satisfy.
type Store interface {
	UserStore
	ContractStore
	SessionStore
	LedgerStore

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
