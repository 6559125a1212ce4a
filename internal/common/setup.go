package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"contract-run-go/internal/accrual"
	"contract-run-go/internal/api"
	"contract-run-go/internal/clock"
	"contract-run-go/internal/dashboard"
	"contract-run-go/internal/database"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/models"
	"contract-run-go/internal/refund"
	"contract-run-go/internal/run"
	"contract-run-go/internal/userlock"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Clock     clock.Clock
	Locks     *userlock.Locks
	Registry  *prometheus.Registry
	Metrics   *metrics.Collector
	Runs      *run.Manager
	Refunds   *refund.Processor
	Dashboard *dashboard.Aggregator
	Ledger    *api.LedgerService
	Window    dashboard.WithdrawWindow
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// PolicyFromConfig builds the accrual policy for cfg
func PolicyFromConfig(cfg models.RunConfig) accrual.Policy {
	policy := accrual.DefaultPolicy()
	if cfg.DailyRate.IsPositive() {
		policy.DailyRate = cfg.DailyRate
	}
	if cfg.ReferencePrincipal.IsPositive() {
		policy.ReferencePrincipal = cfg.ReferencePrincipal
	}
	return policy
}

// InitializeServices opens the database and wires every domain service
// around one clock, one lock table and one metrics registry.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	window := dashboard.WithdrawWindow{
		StartHour: cfg.Withdraw.WindowStartHour,
		EndHour:   cfg.Withdraw.WindowEndHour,
	}
	policy := PolicyFromConfig(cfg.Run)
	clk := clock.Real{}
	locks := userlock.New()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	runs := run.NewManager(dbService, clk, policy, accrual.GlobalSource{}, locks, collector, run.Config{
		ChunkInterval: cfg.Run.ChunkInterval,
		MaxDuration:   cfg.Run.MaxDuration,
	})
	refunds := refund.NewProcessor(dbService, clk, locks, collector)
	dash := dashboard.NewAggregator(dbService, refunds, clk, policy, window)
	ledger := api.NewLedgerService(dbService, runs, dash, clk, locks, window, collector)

	zap.L().Info("Services initialized",
		zap.String("daily_rate", policy.DailyRate.String()),
		zap.Duration("chunk_interval", cfg.Run.ChunkInterval),
		zap.Duration("max_duration", cfg.Run.MaxDuration),
		zap.String("withdraw_window", fmt.Sprintf("%02d:00-%02d:00 UTC", window.StartHour, window.EndHour)))

	return &Services{
		DbService: dbService,
		Clock:     clk,
		Locks:     locks,
		Registry:  registry,
		Metrics:   collector,
		Runs:      runs,
		Refunds:   refunds,
		Dashboard: dash,
		Ledger:    ledger,
		Window:    window,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service
// Useful for read-only operations like listing contracts
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
