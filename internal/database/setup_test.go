package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"contract-run-go/internal/models"
)

var testEpoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  5 * time.Second,
	}

	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	for _, u := range []struct{ id, name, email string }{
		{"user1", "Test User", "test@example.com"},
		{"user2", "Other User", "other@example.com"},
	} {
		if _, err := service.CreateUser(context.Background(), u.id, u.name, u.email); err != nil {
			t.Fatalf("Failed to insert test user: %v", err)
		}
	}

	return service, service.Close
}
