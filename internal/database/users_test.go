package database

import (
	"context"
	"errors"
	"testing"

	"contract-run-go/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLookups(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	user, err := service.GetUserById(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if user.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", user.Email)
	}

	byEmail, err := service.GetUserByEmail(ctx, "other@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.Id != "user2" {
		t.Errorf("Expected user2, got %s", byEmail.Id)
	}

	if _, err := service.GetUserById(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
	if _, err := service.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown email, got %v", err)
	}

	users, err := service.GetUsers(ctx)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
}

func TestCreateUser_DuplicateEmailIsConflict(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	_, err := service.CreateUser(context.Background(), "user3", "Dup", "test@example.com")
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestGetUserById_QueryFailureIsStoreFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := newServiceWithDB(db)
	mock.ExpectQuery("SELECT id, name, email").WithArgs("u1").WillReturnError(errors.New("disk I/O error"))

	_, err = service.GetUserById(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrStoreFailure)
	assert.False(t, errors.Is(err, store.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
