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
	"flag"
	"fmt"

	"contract-run-go/internal/api"
	"contract-run-go/internal/common"
	"contract-run-go/internal/config"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	user   string
	amount decimal.Decimal
	wallet string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	userFlag := flag.String("user", "", "User id or email (required)")
	amountFlag := flag.String("amount", "", "Amount to withdraw (required)")
	walletFlag := flag.String("wallet", "", "Destination wallet (required)")
	flag.Parse()

	if *userFlag == "" || *amountFlag == "" || *walletFlag == "" {
		return nil, fmt.Errorf("all flags are required: --user, --amount, --wallet")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &withdrawalRequest{user: *userFlag, amount: amount, wallet: *walletFlag}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid arguments", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := common.ResolveUser(ctx, services.DbService, req.user)
	if err != nil {
		zap.L().Fatal("Failed to resolve user", zap.Error(err))
	}

	// settle matured contracts first so refunded principal is withdrawable
	if _, err := services.Refunds.ProcessRefunds(ctx, user.Id); err != nil {
		zap.L().Fatal("Failed to process refunds", zap.Error(err))
	}

	result, err := services.Ledger.Withdraw(ctx, user.Id, req.amount, req.wallet)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrWithdrawWindowClosed):
			fmt.Println("Withdrawal window is closed:", err)
		case errors.Is(err, store.ErrInsufficientFunds):
			balance, _ := services.DbService.GetUserBalance(ctx, user.Id)
			fmt.Printf("Insufficient balance: available %s, requested %s\n",
				common.FormatMoney(balance), common.FormatMoney(req.amount))
		default:
			zap.L().Error("Withdrawal failed", zap.Error(err))
		}
		return
	}

	common.PrintHeader("WITHDRAWAL RECORDED", common.DefaultWidth)
	fmt.Printf("ID:          %s\n", result.WithdrawalId)
	fmt.Printf("User:        %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Amount:      %s\n", common.FormatMoney(result.Amount))
	fmt.Printf("Wallet:      %s\n", result.Wallet)
	fmt.Printf("New balance: %s\n", common.FormatMoney(result.NewBalance))
	common.PrintSeparator("=", common.DefaultWidth)
}
