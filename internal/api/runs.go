package api

import (
	"context"
	"errors"
	"fmt"

	"contract-run-go/internal/models"
	"contract-run-go/internal/store"

	"go.uber.org/zap"
)

// StartRun opens a run session on one of the user's contracts
func (s *LedgerService) StartRun(ctx context.Context, userId, contractId string) (*models.StartedRun, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}
	if contractId == "" {
		return nil, fmt.Errorf("%w: contract_id is required", ErrInvalidRequest)
	}

	zap.L().Info("Starting run", zap.String("user_id", userId), zap.String("contract_id", contractId))

	started, err := s.runs.Start(ctx, userId, contractId)
	if err != nil {
		logRunError("Start run failed", userId, err)
		return nil, err
	}
	return started, nil
}

func (s *LedgerService) Heartbeat(ctx context.Context, userId, sessionId string) (models.RunResult, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}

	result, err := s.runs.Heartbeat(ctx, userId, sessionId)
	if err != nil {
		logRunError("Heartbeat failed", userId, err)
		return nil, err
	}
	return result, nil
}

func (s *LedgerService) StopRun(ctx context.Context, userId, sessionId string) (models.RunResult, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}

	zap.L().Info("Stopping run", zap.String("user_id", userId), zap.String("session_id", sessionId))

	result, err := s.runs.Stop(ctx, userId, sessionId)
	if err != nil {
		logRunError("Stop run failed", userId, err)
		return nil, err
	}
	return result, nil
}

func (s *LedgerService) RunStatus(ctx context.Context, userId string) (models.RunResult, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}

	result, err := s.runs.Status(ctx, userId)
	if err != nil {
		logRunError("Run status failed", userId, err)
		return nil, err
	}
	return result, nil
}

// StopContract ends any run on the contract and marks the contract stopped
func (s *LedgerService) StopContract(ctx context.Context, userId, contractId string) (models.RunResult, error) {
	if err := requireUser(userId); err != nil {
		return nil, err
	}
	if contractId == "" {
		return nil, fmt.Errorf("%w: contract_id is required", ErrInvalidRequest)
	}

	zap.L().Info("Stopping contract", zap.String("user_id", userId), zap.String("contract_id", contractId))

	result, err := s.runs.StopContract(ctx, userId, contractId)
	if err != nil {
		logRunError("Stop contract failed", userId, err)
		return nil, err
	}
	return result, nil
}

// logRunError logs expected client errors at info and the rest at error
func logRunError(msg, userId string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalidState):
		zap.L().Info(msg, zap.String("user_id", userId), zap.Error(err))
	default:
		zap.L().Error(msg, zap.String("user_id", userId), zap.Error(err))
	}
}
