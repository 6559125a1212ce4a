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

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"contract-run-go/internal/common"
	"contract-run-go/internal/config"
	"contract-run-go/internal/metrics"
	"contract-run-go/internal/server"
	"contract-run-go/internal/sweeper"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting contract run server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	limiter := server.NewRateLimiter(
		server.HeartbeatLimits(cfg.Server.HeartbeatRatePerMinute, cfg.Server.HeartbeatBurst),
		services.Metrics)
	defer limiter.Stop()

	catalog, err := common.LoadPlans(cfg.Run.PlansFile)
	if err != nil {
		zap.L().Warn("Plan catalog unavailable; contract options route disabled", zap.Error(err))
	}

	router := server.NewRouter(server.RouterDeps{
		Service:        services.Ledger,
		RateLimiter:    limiter,
		MetricsHandler: metrics.Handler(services.Registry),
		Catalog:        catalog,
	})
	httpServer := server.New(cfg.Server.Addr, router, cfg.Server.ShutdownTimeout)

	sw := sweeper.NewSweeper(sweeper.SweeperConfig{
		Runs:     services.Runs,
		Refunds:  services.Refunds,
		Store:    services.DbService,
		Interval: cfg.Sweeper.Interval,
	})
	if err := sw.Start(ctx); err != nil {
		if !errors.Is(err, sweeper.ErrDisabled) {
			zap.L().Fatal("Failed to start sweeper", zap.Error(err))
		}
		zap.L().Info("Session sweeper disabled; sessions finalize on the next client call")
	}
	defer sw.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx)
	})

	zap.L().Info("Press Ctrl+C to stop")
	if err := g.Wait(); err != nil {
		zap.L().Error("Server exited with error", zap.Error(err))
		return
	}
	zap.L().Info("Server stopped gracefully")
}
