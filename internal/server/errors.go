package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"contract-run-go/internal/api"
	"contract-run-go/internal/store"

	"go.uber.org/zap"
)

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ContractId string `json:"contract_id,omitempty"`
	SessionId  string `json:"session_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:       "run_active",
			Message:    conflict.Error(),
			ContractId: conflict.ContractId,
			SessionId:  conflict.SessionId,
		})
	case errors.Is(err, api.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "conflict", Message: err.Error()})
	case errors.Is(err, api.ErrWithdrawWindowClosed):
		writeJSON(w, http.StatusForbidden, errorResponse{Code: "withdraw_window_closed", Message: err.Error()})
	case errors.Is(err, store.ErrInsufficientFunds):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "insufficient_funds", Message: err.Error()})
	case errors.Is(err, store.ErrInvalidState):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "invalid_state", Message: err.Error()})
	case errors.Is(err, store.ErrStoreFailure):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: "unavailable", Message: "storage temporarily unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Message: "internal error"})
	}
}
