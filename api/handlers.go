package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ledgerbot/domain/entities"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type adjustmentRequest struct {
	Amount    string `json:"amount" validate:"required,numeric"`
	Direction string `json:"direction" validate:"required,oneof=debit credit"`
	Reason    string `json:"reason" validate:"required,min=3,max=500"`
}

type resolveRequest struct {
	Note string `json:"note" validate:"required,min=3,max=500"`
}

type entryResponse struct {
	ID             int64     `json:"id"`
	GroupID        string    `json:"group_id"`
	Type           string    `json:"type"`
	Side           string    `json:"side"`
	Amount         string    `json:"amount"`
	Status         string    `json:"status"`
	ExternalTxHash *string   `json:"external_tx_hash,omitempty"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

type accountResponse struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Balance string          `json:"balance"`
	Entries []entryResponse `json:"entries"`
}

type reconciliationResponse struct {
	InternalTotal string    `json:"internal_total"`
	OnChainTotal  string    `json:"on_chain_total"`
	Difference    string    `json:"difference"`
	Tolerance     string    `json:"tolerance"`
	Direction     string    `json:"direction"`
	Matched       bool      `json:"matched"`
	CheckedAt     time.Time `json:"checked_at"`
}

type mismatchResponse struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Cached    string `json:"cached"`
	Replayed  string `json:"replayed"`
}

type failureResponse struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"account_id"`
	ToAddress      string     `json:"to_address"`
	Amount         string     `json:"amount"`
	Error          string     `json:"error"`
	OutcomeUnknown bool       `json:"outcome_unknown"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`
}

type failedDepositResponse struct {
	TxHash      string    `json:"tx_hash"`
	UserID      int64     `json:"user_id"`
	Amount      string    `json:"amount"`
	FromAddress string    `json:"from_address"`
	Error       string    `json:"error"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.ReconcileBalances(r.Context())
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, reconciliationResponse{
		InternalTotal: report.InternalTotal.String(),
		OnChainTotal:  report.OnChainTotal.String(),
		Difference:    report.Difference.String(),
		Tolerance:     report.Tolerance.String(),
		Direction:     report.Direction(),
		Matched:       report.Matched,
		CheckedAt:     report.CheckedAt,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	mismatches, err := s.ledger.AuditBalances(r.Context())
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	accounts := s.ledger.Accounts()
	resp := make([]mismatchResponse, 0, len(mismatches))
	for _, m := range mismatches {
		resp = append(resp, mismatchResponse{
			AccountID: int64(m.AccountID),
			Name:      accounts.Name(m.AccountID),
			Cached:    m.Cached.String(),
			Replayed:  m.Replayed.String(),
		})
	}
	sendJSON(w, http.StatusOK, map[string]any{"mismatches": resp})
}

// handleAdjustment books a correction against the reserve. Other accounts
// are adjusted through ordinary operations, never from the ops API.
func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	amount, err := entities.ParseAmount(req.Amount)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	if err := amount.ValidatePositive(); err != nil {
		sendLedgerError(w, err)
		return
	}
	if req.Direction == "debit" {
		amount = -amount
	}

	reserve := s.ledger.Accounts().Reserve
	result, err := s.ledger.ProcessAdjustment(r.Context(), reserve, amount, req.Reason)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, map[string]any{
		"group_id":        result.GroupID.String(),
		"amount":          result.Amount.String(),
		"reserve_balance": result.NewBalance.String(),
	})
}

func (s *Server) handleDepositRetry(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(chi.URLParam(r, "hash"))
	if hash == "" {
		sendError(w, "tx hash is required", http.StatusBadRequest, nil)
		return
	}

	result, err := s.deposits.ReconcileTxHash(r.Context(), hash)
	if err != nil {
		sendLedgerError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	sendJSON(w, status, map[string]any{
		"tx_hash":     result.TxHash,
		"account_id":  int64(result.AccountID),
		"amount":      result.Amount.String(),
		"new_balance": result.NewBalance.String(),
		"unclaimed":   result.Unclaimed,
		"duplicate":   result.Duplicate,
	})
}

func (s *Server) handleFailedDeposits(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 100)
	if !ok {
		return
	}

	deposits, err := s.ledger.FailedDeposits(r.Context(), limit)
	if err != nil {
		sendLedgerError(w, err)
		return
	}

	resp := make([]failedDepositResponse, 0, len(deposits))
	for _, d := range deposits {
		item := failedDepositResponse{
			TxHash:      d.TxHash,
			UserID:      int64(d.UserID),
			Amount:      d.Amount.String(),
			FromAddress: d.FromAddress,
			CreatedAt:   d.CreatedAt,
		}
		if d.Error != nil {
			item.Error = *d.Error
		}
		resp = append(resp, item)
	}
	sendJSON(w, http.StatusOK, map[string]any{"deposits": resp})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, "account id must be an integer", http.StatusBadRequest, nil)
		return
	}
	account := entities.AccountID(id)

	limit, ok := queryLimit(w, r, 50)
	if !ok {
		return
	}

	exists, err := s.ledger.AccountExists(r.Context(), account)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	if !exists {
		sendError(w, "account not found", http.StatusNotFound, nil)
		return
	}

	balance, err := s.ledger.GetBalance(r.Context(), account)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	entries, err := s.ledger.History(r.Context(), account, limit)
	if err != nil {
		sendLedgerError(w, err)
		return
	}

	resp := accountResponse{
		ID:      id,
		Name:    s.ledger.Accounts().Name(account),
		Balance: balance.String(),
		Entries: make([]entryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryResponse{
			ID:             e.ID,
			GroupID:        e.GroupID.String(),
			Type:           e.Type.String(),
			Side:           string(e.Side),
			Amount:         e.Amount.String(),
			Status:         string(e.Status),
			ExternalTxHash: e.ExternalTxHash,
			Description:    e.Description,
			CreatedAt:      e.CreatedAt,
		})
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGatewayFailures(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 100)
	if !ok {
		return
	}
	unresolvedOnly := r.URL.Query().Get("all") != "true"

	failures, err := s.ledger.GatewayFailures(r.Context(), unresolvedOnly, limit)
	if err != nil {
		sendLedgerError(w, err)
		return
	}

	resp := make([]failureResponse, 0, len(failures))
	for _, f := range failures {
		resp = append(resp, toFailureResponse(f))
	}
	sendJSON(w, http.StatusOK, map[string]any{"failures": resp})
}

func (s *Server) handleResolveFailure(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		sendError(w, "failure id must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	var req resolveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	failure, err := s.ledger.ResolveGatewayFailure(r.Context(), id, req.Note)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, toFailureResponse(failure))
}

func (s *Server) handleFineQuote(w http.ResponseWriter, r *http.Request) {
	if s.fines == nil {
		sendError(w, "no rate source configured", http.StatusServiceUnavailable, nil)
		return
	}

	usd, err := decimal.NewFromString(r.URL.Query().Get("usd"))
	if err != nil {
		sendError(w, "usd must be a decimal number", http.StatusBadRequest, nil)
		return
	}

	amount, err := s.fines.TokensForUSD(r.Context(), usd)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{
		"usd":    usd.String(),
		"tokens": amount.String(),
	})
}

func toFailureResponse(f *entities.GatewayFailure) failureResponse {
	return failureResponse{
		ID:             f.ID,
		AccountID:      int64(f.AccountID),
		ToAddress:      f.ToAddress,
		Amount:         f.Amount.String(),
		Error:          f.Error,
		OutcomeUnknown: f.OutcomeUnknown,
		CreatedAt:      f.CreatedAt,
		ResolvedAt:     f.ResolvedAt,
		ResolutionNote: f.ResolutionNote,
	}
}

// queryLimit reads an optional positive ?limit= parameter
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		sendError(w, "limit must be between 1 and 1000", http.StatusBadRequest, nil)
		return 0, false
	}
	return limit, true
}
