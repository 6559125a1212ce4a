// Package accrual computes run-session earnings. Everything here is pure:
// callers supply the principal, the elapsed time and a random source.
package accrual

import (
	"math/rand/v2"
	"sync"
	"time"

	"contract-run-go/internal/models"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept for every amount.
const Precision = 4

const secondsPerDay = 86400

var (
	DefaultDailyRate          = decimal.RequireFromString("0.02")
	DefaultReferencePrincipal = decimal.NewFromInt(2000)
	DefaultReferenceScale     = decimal.NewFromInt(2000)

	// DefaultBases are the per-chunk magnitudes at ReferenceScale. The largest
	// stays below the cap growth of one 10-minute chunk (~0.2778 at 2000).
	DefaultBases = []decimal.Decimal{
		decimal.RequireFromString("0.10"),
		decimal.RequireFromString("0.15"),
		decimal.RequireFromString("0.20"),
		decimal.RequireFromString("0.25"),
	}
)

// Source picks an index in [0, n)
type Source interface {
	IntN(n int) int
}

// Policy holds the accrual constants
type Policy struct {
	DailyRate          decimal.Decimal
	ReferencePrincipal decimal.Decimal
	ReferenceScale     decimal.Decimal
	Bases              []decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		DailyRate:          DefaultDailyRate,
		ReferencePrincipal: DefaultReferencePrincipal,
		ReferenceScale:     DefaultReferenceScale,
		Bases:              DefaultBases,
	}
}

// EffectivePrincipal substitutes the reference principal for an unknown or
// non-positive one, so a session can always make progress.
func (p Policy) EffectivePrincipal(principal decimal.Decimal) decimal.Decimal {
	if principal.IsPositive() {
		return principal
	}
	return p.ReferencePrincipal
}

// ChunkAmount draws one display-sized chunk for principal. It only shapes the
// distribution of individual credits; MaxEarnings is the authoritative ceiling.
func (p Policy) ChunkAmount(principal decimal.Decimal, src Source) decimal.Decimal {
	if len(p.Bases) == 0 {
		return decimal.Zero
	}
	base := p.Bases[src.IntN(len(p.Bases))]
	scale := p.EffectivePrincipal(principal).Div(p.ReferenceScale)
	return base.Mul(scale).Round(Precision)
}

// MaxEarnings is principal * dailyRate * elapsed/day, rounded to Precision.
func (p Policy) MaxEarnings(principal decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return decimal.Zero
	}
	seconds := decimal.NewFromInt(elapsed.Milliseconds()).Div(decimal.NewFromInt(1000))
	return p.EffectivePrincipal(principal).
		Mul(p.DailyRate).
		Mul(seconds).
		Div(decimal.NewFromInt(secondsPerDay)).
		Round(Precision)
}

// Clamp limits amount so that earned+amount never exceeds limit. The result
// is never negative; zero means the cap has been reached.
func Clamp(amount, earned, limit decimal.Decimal) decimal.Decimal {
	room := limit.Sub(earned)
	if room.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, room)
}

// NominalValue is the time-accrued value of a contract: principal grown by
// DailyRate per whole day since start. Only active contracts grow, and growth
// stops at the end of the term.
func (p Policy) NominalValue(c models.Contract, now time.Time) decimal.Decimal {
	if c.Status != models.ContractActive || !c.Principal.IsPositive() {
		return c.Principal
	}
	until := now
	if !c.EndTime.IsZero() && c.EndTime.Before(now) {
		until = c.EndTime
	}
	days := int64(until.Sub(c.StartTime) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	growth := decimal.NewFromInt(1).Add(p.DailyRate.Mul(decimal.NewFromInt(days)))
	return c.Principal.Mul(growth)
}

// LockedSource is a Source that is safe for concurrent use
type LockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a seeded, concurrency-safe Source
func NewSource(seed uint64) *LockedSource {
	return &LockedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *LockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// GlobalSource draws from the runtime-seeded global generator
type GlobalSource struct{}

func (GlobalSource) IntN(n int) int { return rand.IntN(n) }
