package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mcloones/rewards/internal/middleware"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/services"
	"github.com/mcloones/rewards/internal/store"
)

// Awarder creates ledger entries
type Awarder interface {
	Award(ctx context.Context, actor models.Actor, employeeID string, amount int64, reason string) (models.Transaction, error)
}

// LedgerReader serves the read paths
type LedgerReader interface {
	GetBalance(ctx context.Context, employeeID string) (int64, error)
	GetHistory(ctx context.Context, employeeID string, page store.Page) (store.TransactionPage, error)
	GetGlobalFeed(ctx context.Context, page store.Page) (store.TransactionPage, error)
	GetLeaderboard(ctx context.Context, n int) ([]models.Standing, error)
}

type RewardsHandler struct {
	awards    Awarder
	queries   LedgerReader
	validator *services.ValidationHelper
}

func NewRewardsHandler(awards Awarder, queries LedgerReader) *RewardsHandler {
	return &RewardsHandler{
		awards:    awards,
		queries:   queries,
		validator: services.NewValidationHelper(),
	}
}

// AwardRequest is the body of an award or deduction
type AwardRequest struct {
	Amount int64  `json:"amount" example:"50"`                              // Signed points, negative for a deduction
	Reason string `json:"reason" validate:"max=500" example:"Great review"` // Why the points were given
}

// AwardResponse is returned for a committed award
type AwardResponse struct {
	Transaction models.Transaction `json:"transaction"`
}

// BalanceResponse carries one employee balance
type BalanceResponse struct {
	EmployeeID string `json:"employee_id"`
	Balance    int64  `json:"balance"`
}

// LeaderboardResponse carries the ranked standings
type LeaderboardResponse struct {
	Standings []models.Standing `json:"standings"`
}

type pageQuery struct {
	Limit  int    `validate:"min=1,max=100"`
	Cursor string `validate:"omitempty,numeric"`
}

// Award records points for an employee
// @Summary Award or deduct points
// @Description Append a signed transaction to the employee's ledger and update the balance atomically
// @Tags rewards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param employeeId path string true "Employee ID"
// @Param request body AwardRequest true "Award request"
// @Success 201 {object} AwardResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /employees/{employeeId}/awards [post]
func (h *RewardsHandler) Award(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AwardRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := h.awards.Award(r.Context(), actor, chi.URLParam(r, "employeeId"), req.Amount, req.Reason)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AwardResponse{Transaction: tx})
}

// GetBalance returns an employee balance
// @Summary Get balance
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Param employeeId path string true "Employee ID"
// @Success 200 {object} BalanceResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /employees/{employeeId}/balance [get]
func (h *RewardsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeId")

	balance, err := h.queries.GetBalance(r.Context(), employeeID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{EmployeeID: employeeID, Balance: balance})
}

// GetHistory lists an employee's transactions
// @Summary Get transaction history
// @Description Newest first. Pass next_cursor back as cursor for the following page.
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Param employeeId path string true "Employee ID"
// @Param limit query int false "Page size (default: 20, max: 100)"
// @Param cursor query string false "Cursor from a previous page"
// @Success 200 {object} store.TransactionPage
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /employees/{employeeId}/transactions [get]
func (h *RewardsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	page, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	result, err := h.queries.GetHistory(r.Context(), chi.URLParam(r, "employeeId"), page)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetGlobalFeed lists recent transactions across all employees
// @Summary Get recent transactions
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default: 20, max: 100)"
// @Param cursor query string false "Cursor from a previous page"
// @Success 200 {object} store.TransactionPage
// @Failure 400 {object} services.ErrorResponse
// @Router /transactions/recent [get]
func (h *RewardsHandler) GetGlobalFeed(w http.ResponseWriter, r *http.Request) {
	page, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	result, err := h.queries.GetGlobalFeed(r.Context(), page)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetLeaderboard returns the top n employees
// @Summary Get leaderboard
// @Tags rewards
// @Produce json
// @Security BearerAuth
// @Param n query int false "Number of standings (default: 10, max: 100)"
// @Success 200 {object} LeaderboardResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /leaderboard [get]
func (h *RewardsHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		N int `validate:"min=1,max=100"`
	}
	req.N = 10

	if nStr := r.URL.Query().Get("n"); nStr != "" {
		n, err := strconv.Atoi(nStr)
		if err != nil {
			services.SendErrorResponse(w, "n must be an integer", http.StatusBadRequest, nil)
			return
		}
		req.N = n
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	standings, err := h.queries.GetLeaderboard(r.Context(), req.N)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{Standings: standings})
}

func (h *RewardsHandler) parsePage(w http.ResponseWriter, r *http.Request) (store.Page, bool) {
	q := pageQuery{Limit: 20, Cursor: r.URL.Query().Get("cursor")}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			services.SendErrorResponse(w, "limit must be an integer", http.StatusBadRequest, nil)
			return store.Page{}, false
		}
		q.Limit = l
	}

	if err := h.validator.ValidateStruct(&q); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return store.Page{}, false
	}

	return store.Page{Limit: q.Limit, Cursor: q.Cursor}, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
