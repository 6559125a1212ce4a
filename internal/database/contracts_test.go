package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"github.com/shopspring/decimal"
)

func createActiveContract(t *testing.T, service *Service, userId, principal string, days int) *models.Contract {
	t.Helper()
	contract, err := service.CreateContract(context.Background(), store.CreateContractParams{
		UserId:       userId,
		Principal:    decimal.RequireFromString(principal),
		Status:       models.ContractActive,
		DurationDays: days,
		StartTime:    testEpoch,
	})
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	return contract
}

func TestCreateAndGetContract(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	created := createActiveContract(t, service, "user1", "1989", 30)

	got, err := service.GetContract(ctx, "user1", created.Id)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if !got.Principal.Equal(decimal.NewFromInt(1989)) {
		t.Errorf("Expected principal 1989, got %s", got.Principal.String())
	}
	if !got.EndTime.Equal(testEpoch.Add(30 * 24 * time.Hour)) {
		t.Errorf("Expected end time %v, got %v", testEpoch.Add(30*24*time.Hour), got.EndTime)
	}
	if got.RefundedAt != nil {
		t.Errorf("Expected no refunded_at, got %v", got.RefundedAt)
	}

	// Foreign contracts look missing
	if _, err := service.GetContract(ctx, "user2", created.Id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign contract, got %v", err)
	}

	contracts, err := service.GetContracts(ctx, "user1")
	if err != nil {
		t.Fatalf("GetContracts failed: %v", err)
	}
	if len(contracts) != 1 {
		t.Errorf("Expected 1 contract, got %d", len(contracts))
	}
}

func TestActivateContract(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	pending, err := service.CreateContract(ctx, store.CreateContractParams{
		UserId:       "user1",
		Principal:    decimal.NewFromInt(2900),
		DurationDays: 60,
		StartTime:    testEpoch,
	})
	if err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if pending.Status != models.ContractPending {
		t.Fatalf("Expected pending status, got %s", pending.Status)
	}

	at := testEpoch.Add(2 * time.Hour)
	active, err := service.ActivateContract(ctx, "user1", pending.Id, at)
	if err != nil {
		t.Fatalf("ActivateContract failed: %v", err)
	}
	if active.Status != models.ContractActive {
		t.Errorf("Expected active status, got %s", active.Status)
	}
	if !active.StartTime.Equal(at) || !active.EndTime.Equal(at.Add(60*24*time.Hour)) {
		t.Errorf("Expected term to start at activation, got %v - %v", active.StartTime, active.EndTime)
	}

	if _, err := service.ActivateContract(ctx, "user1", pending.Id, at); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second activation, got %v", err)
	}
}

func TestUpdateContractStatus(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	contract := createActiveContract(t, service, "user1", "1989", 30)

	if err := service.UpdateContractStatus(ctx, "user1", contract.Id, models.ContractStopped); err != nil {
		t.Fatalf("UpdateContractStatus failed: %v", err)
	}
	got, err := service.GetContract(ctx, "user1", contract.Id)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if got.Status != models.ContractStopped {
		t.Errorf("Expected stopped, got %s", got.Status)
	}

	if err := service.UpdateContractStatus(ctx, "user1", contract.Id, models.ContractRefunded); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Expected refunded status to be rejected, got %v", err)
	}
	if err := service.UpdateContractStatus(ctx, "user2", contract.Id, models.ContractActive); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for foreign contract, got %v", err)
	}
}

func TestRefundContract_ExactlyOnce(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	contract := createActiveContract(t, service, "user1", "1989", 30)
	at := contract.EndTime.Add(time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := service.RefundContract(ctx, "user1", contract.Id, at)
			if err != nil {
				t.Errorf("RefundContract failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if credited != 1 {
		t.Fatalf("Expected exactly 1 refund, got %d", credited)
	}

	balance, err := service.GetUserBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(1989)) {
		t.Errorf("Expected balance 1989, got %s", balance.String())
	}

	got, err := service.GetContract(ctx, "user1", contract.Id)
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if got.Status != models.ContractRefunded || got.RefundedAt == nil {
		t.Errorf("Expected refunded contract with refunded_at, got %s %v", got.Status, got.RefundedAt)
	}
}
