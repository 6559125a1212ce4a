package refund

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"contract-run-go/internal/clock"
	"contract-run-go/internal/database"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/models"
	"contract-run-go/internal/store"
	"contract-run-go/internal/userlock"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setup(t *testing.T) (*database.Service, *clock.Fake) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "refund.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.CreateUser(context.Background(), "user1", "Test User", "test@example.com")
	require.NoError(t, err)

	return db, clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func addContract(t *testing.T, db *database.Service, principal int64, start time.Time, days int) *models.Contract {
	t.Helper()
	c, err := db.CreateContract(context.Background(), store.CreateContractParams{
		UserId:       "user1",
		Principal:    decimal.NewFromInt(principal),
		Status:       models.ContractActive,
		DurationDays: days,
		StartTime:    start,
	})
	require.NoError(t, err)
	return c
}

func TestProcessRefunds_OnlyMatured(t *testing.T) {
	db, clk := setup(t)
	ctx := context.Background()

	matured := addContract(t, db, 1989, clk.Now().Add(-31*24*time.Hour), 30)
	atBoundary := addContract(t, db, 2900, clk.Now().Add(-60*24*time.Hour), 60)
	running := addContract(t, db, 4190, clk.Now().Add(-10*24*time.Hour), 90)

	p := NewProcessor(db, clk, userlock.New(), nil)

	due, err := p.HasDueRefunds(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, due)

	n, err := p.ProcessRefunds(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	balance, err := db.GetUserBalance(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1989+2900)), "balance %s", balance)

	for _, c := range []*models.Contract{matured, atBoundary} {
		got, err := db.GetContract(ctx, "user1", c.Id)
		require.NoError(t, err)
		assert.Equal(t, models.ContractRefunded, got.Status)
		require.NotNil(t, got.RefundedAt)
	}
	got, err := db.GetContract(ctx, "user1", running.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ContractActive, got.Status)

	// Second pass finds nothing
	n, err = p.ProcessRefunds(ctx, "user1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessRefunds_ExactlyOnceUnderConcurrency(t *testing.T) {
	db, clk := setup(t)
	ctx := context.Background()
	addContract(t, db, 1989, clk.Now().Add(-40*24*time.Hour), 30)

	reg := prometheus.NewRegistry()
	p := NewProcessor(db, clk, userlock.New(), metrics.NewCollector(reg))

	var g errgroup.Group
	results := make([]int, 10)
	for i := range results {
		g.Go(func() error {
			n, err := p.ProcessRefunds(ctx, "user1")
			results[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())

	total := 0
	for _, n := range results {
		total += n
	}
	assert.Equal(t, 1, total)

	balance, err := db.GetUserBalance(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1989)))
	assert.NoError(t, db.ReconcileUserBalance(ctx, "user1"))
}

func TestProcessRefunds_SkipsStoppedContracts(t *testing.T) {
	db, clk := setup(t)
	ctx := context.Background()
	c := addContract(t, db, 1989, clk.Now().Add(-40*24*time.Hour), 30)
	require.NoError(t, db.UpdateContractStatus(ctx, "user1", c.Id, models.ContractStopped))

	n, err := NewProcessor(db, clk, userlock.New(), nil).ProcessRefunds(ctx, "user1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
