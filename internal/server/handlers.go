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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"contract-run-go/internal/api"
	"contract-run-go/internal/common"
	"contract-run-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Service is the subset of api.LedgerService the handlers call
type Service interface {
	StartRun(ctx context.Context, userId, contractId string) (*models.StartedRun, error)
	Heartbeat(ctx context.Context, userId, sessionId string) (models.RunResult, error)
	StopRun(ctx context.Context, userId, sessionId string) (models.RunResult, error)
	RunStatus(ctx context.Context, userId string) (models.RunResult, error)
	StopContract(ctx context.Context, userId, contractId string) (models.RunResult, error)
	GetDashboard(ctx context.Context, userId string) (*models.Dashboard, error)
	Withdraw(ctx context.Context, userId string, amount decimal.Decimal, wallet string) (*models.WithdrawalResult, error)
	GetTransactionHistory(ctx context.Context, userId string, limit, offset int) ([]models.TransactionRecord, error)
	HealthCheck(ctx context.Context) error
}

type handlers struct {
	service Service
	catalog *common.Catalog
}

type planOption struct {
	Id     int             `json:"id"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type optionsResponse struct {
	Plans     []planOption `json:"plans"`
	Durations []int        `json:"durations"`
}

type startRunRequest struct {
	ContractId string `json:"contract_id"`
}

type sessionRequest struct {
	SessionId string `json:"session_id"`
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Wallet string          `json:"wallet"`
}

// decodeBody accepts an empty body as the zero value
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body: %v", api.ErrInvalidRequest, err)
	}
	return nil
}

func (h *handlers) startRun(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	var req startRunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	started, err := h.service.StartRun(r.Context(), userId, req.ContractId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Heartbeat(r.Context(), userId, req.SessionId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) stopRun(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.StopRun(r.Context(), userId, req.SessionId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) runStatus(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	result, err := h.service.RunStatus(r.Context(), userId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) stopContract(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	result, err := h.service.StopContract(r.Context(), userId, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	d, err := h.service.GetDashboard(r.Context(), userId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Withdraw(r.Context(), userId, req.Amount, req.Wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *handlers) transactions(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserIdFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.service.GetTransactionHistory(r.Context(), userId, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.HealthCheck(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) contractOptions(w http.ResponseWriter, r *http.Request) {
	options := optionsResponse{
		Plans:     make([]planOption, 0, len(h.catalog.Plans)),
		Durations: h.catalog.Durations,
	}
	for _, p := range h.catalog.Plans {
		options.Plans = append(options.Plans, planOption{Id: p.Id, Label: p.Label, Amount: p.Amount})
	}
	writeJSON(w, http.StatusOK, options)
}
