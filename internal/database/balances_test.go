package database

import (
	"context"
	"errors"
	"testing"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestGetUserBalance_NoBalance(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	balance, err := service.GetUserBalance(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}

	if !balance.Equal(decimal.Zero) {
		t.Errorf("Expected balance 0, got %s", balance.String())
	}
}

func TestGetUserBalance_WithTransactions(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionAccrual, "2.0", "tx1")); err != nil {
		t.Fatalf("Failed to create credit: %v", err)
	}
	if _, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionWithdrawal, "-0.5", "tx2")); err != nil {
		t.Fatalf("Failed to create debit: %v", err)
	}

	balance, err := service.GetUserBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}

	expectedBalance := decimal.RequireFromString("1.5")
	if !balance.Equal(expectedBalance) {
		t.Errorf("Expected balance %s, got %s", expectedBalance.String(), balance.String())
	}

	other, err := service.GetUserBalance(ctx, "user2")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !other.IsZero() {
		t.Errorf("Expected other user balance 0, got %s", other.String())
	}
}

func TestReconcileUserBalance(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	for i, amount := range []string{"0.1", "0.2", "0.0001", "-0.15"} {
		txType := models.TransactionAccrual
		if amount[0] == '-' {
			txType = models.TransactionWithdrawal
		}
		params := ledgerParams("user1", txType, amount, "k"+string(rune('a'+i)))
		if _, err := service.ProcessTransaction(ctx, params); err != nil {
			t.Fatalf("ProcessTransaction %s failed: %v", amount, err)
		}
	}

	if err := service.ReconcileUserBalance(ctx, "user1"); err != nil {
		t.Fatalf("Expected balances to reconcile, got: %v", err)
	}

	// Corrupt the hot balance to make sure the check is real
	if _, err := service.db.Exec("UPDATE account_balances SET balance = '9' WHERE user_id = 'user1'"); err != nil {
		t.Fatalf("Failed to corrupt balance: %v", err)
	}
	if err := service.ReconcileUserBalance(ctx, "user1"); err == nil {
		t.Errorf("Expected reconcile mismatch after corruption")
	}
}

func TestRecordWithdrawal(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ProcessTransaction(ctx, ledgerParams("user1", models.TransactionRefund, "100", "refund:c1")); err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	w, newBalance, err := service.RecordWithdrawal(ctx, store.WithdrawalParams{
		UserId: "user1",
		Amount: decimal.RequireFromString("40.25"),
		Wallet: "TRC20-WALLET",
		At:     testEpoch,
	})
	if err != nil {
		t.Fatalf("RecordWithdrawal failed: %v", err)
	}
	if !newBalance.Equal(decimal.RequireFromString("59.75")) {
		t.Errorf("Expected new balance 59.75, got %s", newBalance.String())
	}

	withdrawals, err := service.GetWithdrawals(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWithdrawals failed: %v", err)
	}
	if len(withdrawals) != 1 || withdrawals[0].Id != w.Id {
		t.Fatalf("Expected the recorded withdrawal, got %+v", withdrawals)
	}

	_, _, err = service.RecordWithdrawal(ctx, store.WithdrawalParams{
		UserId: "user1",
		Amount: decimal.RequireFromString("60"),
		Wallet: "TRC20-WALLET",
		At:     testEpoch,
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected insufficient funds, got: %v", err)
	}

	withdrawals, err = service.GetWithdrawals(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWithdrawals failed: %v", err)
	}
	if len(withdrawals) != 1 {
		t.Errorf("Expected failed withdrawal to leave no row, got %d rows", len(withdrawals))
	}
}
