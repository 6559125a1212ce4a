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
	"flag"
	"fmt"

	"contract-run-go/internal/api"
	"contract-run-go/internal/common"
	"contract-run-go/internal/config"
	"contract-run-go/internal/models"

	"go.uber.org/zap"
)

type reportStats struct {
	totalUsers       int
	usersWithActive  int
	refundsProcessed int
}

func printContract(c models.ContractSummary, isLast bool) {
	fmt.Printf("%s %s  %-9s principal %12s  value %12s  ends %s\n",
		common.BoxPrefix(isLast),
		common.ShortId(c.Id),
		c.Status,
		common.FormatMoney(c.Principal),
		common.FormatMoney(c.NominalValue),
		common.FormatTime(c.EndTime))
}

func printDashboard(user common.UserInfo, d *models.Dashboard) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Contracts: %d   Total: %s   Withdrawn: %s   Available: %s\n",
		d.ContractCount,
		common.FormatMoney(d.TotalBalance),
		common.FormatMoney(d.Withdrawn),
		common.FormatMoney(d.Available))
	if d.ActiveRunContractId != "" {
		fmt.Printf("│  Running on contract: %s\n", common.ShortId(d.ActiveRunContractId))
	}
	if d.RefundsProcessed > 0 {
		fmt.Printf("│  Refunded %d matured contract(s) just now\n", d.RefundsProcessed)
	}
	common.PrintBoxSeparator(78)

	for i, c := range d.Contracts {
		printContract(c, i == len(d.Contracts)-1)
	}
}

func generateReport(ctx context.Context, users []common.UserInfo, ledger *api.LedgerService) reportStats {
	stats := reportStats{}

	for _, user := range users {
		stats.totalUsers++

		d, err := ledger.GetDashboard(ctx, user.Id)
		if err != nil {
			zap.L().Error("Failed to build dashboard",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}

		if d.ActiveRunContractId != "" {
			stats.usersWithActive++
		}
		stats.refundsProcessed += d.RefundsProcessed
		printDashboard(user, d)
	}

	return stats
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by user id or email (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.InitializeUsers(ctx, services.DbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("CONTRACT DASHBOARD", common.WideWidth)
	stats := generateReport(ctx, users, services.Ledger)

	window := "closed"
	if services.Window.Open(services.Clock.Now()) {
		window = "open"
	}
	summary := fmt.Sprintf("SUMMARY: %d users, %d running, %d refunds processed, withdrawal window %s",
		stats.totalUsers, stats.usersWithActive, stats.refundsProcessed, window)
	common.PrintFooter(summary, common.WideWidth)

	zap.L().Info("Dashboard report completed",
		zap.Int("users", stats.totalUsers),
		zap.Int("refunds_processed", stats.refundsProcessed))
}
