package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
)

func ledgerParams(userId, txType, amount, key string) store.LedgerParams {
	return store.LedgerParams{
		UserId:          userId,
		TransactionType: txType,
		Amount:          decimal.RequireFromString(amount),
		IdempotencyKey:  key,
		At:              testEpoch,
	}
}

func TestProcessTransaction_Credit(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	amount := decimal.RequireFromString("1.5")

	result, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionAccrual, "1.5", "k1"))
	if err != nil {
		t.Fatalf("ProcessTransaction failed: %v", err)
	}

	if result.UserId != "user1" {
		t.Errorf("Expected userId user1, got %s", result.UserId)
	}
	if !result.Amount.Equal(amount) {
		t.Errorf("Expected amount %s, got %s", amount.String(), result.Amount.String())
	}
	if !result.BalanceBefore.IsZero() {
		t.Errorf("Expected balance before 0, got %s", result.BalanceBefore.String())
	}
	if !result.BalanceAfter.Equal(amount) {
		t.Errorf("Expected balance %s, got %s", amount.String(), result.BalanceAfter.String())
	}
}

func TestProcessTransaction_Debit(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionRefund, "2.0", "k1")); err != nil {
		t.Fatalf("Initial credit failed: %v", err)
	}

	result, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionWithdrawal, "-0.5", "k2"))
	if err != nil {
		t.Fatalf("ProcessTransaction debit failed: %v", err)
	}

	expectedBalance := decimal.RequireFromString("1.5")
	if !result.BalanceAfter.Equal(expectedBalance) {
		t.Errorf("Expected balance %s, got %s", expectedBalance.String(), result.BalanceAfter.String())
	}
}

func TestProcessTransaction_DuplicateHandling(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	params := ledgerParams("user1", models.TransactionAccrual, "1.0", "chunk:s1:0")

	if _, err := service.ProcessTransaction(ctx, params); err != nil {
		t.Fatalf("First ProcessTransaction failed: %v", err)
	}

	_, err := service.ProcessTransaction(ctx, params)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected duplicate transaction error, got: %v", err)
	}

	balance, err := service.GetUserBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("Expected balance 1.0 after duplicate, got %s", balance.String())
	}
}

func TestProcessTransaction_RejectsOverdraw(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	_, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionWithdrawal, "-1.0", "k1"))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got: %v", err)
	}

	balance, err := service.GetUserBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}
}

func TestGetTransactionHistory_NewestFirst(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	for i, key := range []string{"a", "b", "c"} {
		params := ledgerParams("user1", models.TransactionAccrual, "0.1", key)
		params.At = testEpoch.Add(time.Duration(i) * time.Minute)
		if _, err := service.ProcessTransaction(ctx, params); err != nil {
			t.Fatalf("ProcessTransaction %s failed: %v", key, err)
		}
	}

	history, err := service.GetTransactionHistory(ctx, "user1", 2, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(history))
	}
	if history[0].IdempotencyKey != "c" || history[1].IdempotencyKey != "b" {
		t.Errorf("Expected keys [c b], got [%s %s]", history[0].IdempotencyKey, history[1].IdempotencyKey)
	}
	if !history[0].BalanceAfter.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("Expected latest balance 0.3, got %s", history[0].BalanceAfter.String())
	}
}
