package main

import (
	"context"
	"flag"
	"fmt"

	"contract-run-go/internal/common"
	"contract-run-go/internal/config"
	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"go.uber.org/zap"
)

// addcontract records a confirmed purchase. Payment confirmation itself
// happens upstream; this tool only persists the result.
func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id or email (required)")
	planFlag := flag.Int("plan", 0, "Plan id from the plans file (required)")
	daysFlag := flag.Int("days", 30, "Contract term in days")
	pendingFlag := flag.Bool("pending", false, "Create the contract as pending instead of active")
	referenceFlag := flag.String("payment-ref", "", "External payment reference (optional)")
	flag.Parse()

	if *userFlag == "" || *planFlag == 0 {
		zap.L().Fatal("Both flags are required: --user and --plan")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	catalog, err := common.LoadPlans(cfg.Run.PlansFile)
	if err != nil {
		zap.L().Fatal("Failed to load plans", zap.Error(err))
	}
	plan, err := catalog.FindPlan(*planFlag)
	if err != nil {
		zap.L().Fatal("Invalid plan", zap.Error(err))
	}
	if !catalog.ValidDuration(*daysFlag) {
		zap.L().Fatal("Invalid duration", zap.Int("days", *daysFlag), zap.Ints("allowed", catalog.Durations))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, err := common.ResolveUser(ctx, dbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve user", zap.Error(err))
	}

	status := models.ContractActive
	if *pendingFlag {
		status = models.ContractPending
	}

	contract, err := dbService.CreateContract(ctx, store.CreateContractParams{
		UserId:           user.Id,
		Principal:        plan.Amount,
		Status:           status,
		DurationDays:     *daysFlag,
		PaymentReference: *referenceFlag,
	})
	if err != nil {
		zap.L().Fatal("Failed to create contract", zap.Error(err))
	}

	common.PrintHeader("CONTRACT CREATED", common.DefaultWidth)
	fmt.Printf("ID:        %s\n", contract.Id)
	fmt.Printf("User:      %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Plan:      %s\n", plan.Label)
	fmt.Printf("Principal: %s\n", common.FormatMoney(contract.Principal))
	fmt.Printf("Status:    %s\n", contract.Status)
	fmt.Printf("Term:      %d days\n", contract.DurationDays)
	if contract.Status == models.ContractActive {
		fmt.Printf("Ends:      %s\n", common.FormatTime(contract.EndTime))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
