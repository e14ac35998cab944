package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dragonbet/casino/internal/wallet"
)

// The integration surface serves payment-provider callbacks. It is
// authenticated by a shared secret, not session auth: the caller is another
// backend, not a player.

type transactionRequest struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	Player         string          `json:"player"`
	Currency       string          `json:"currency,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Kind           string          `json:"kind"`
	RoundRef       string          `json:"roundRef,omitempty"`
}

type transactionResponse struct {
	Status   string          `json:"status"`
	Balance  decimal.Decimal `json:"balance,omitempty"`
	Replayed bool            `json:"replayed,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type balanceResponse struct {
	Status  string          `json:"status"`
	Balance decimal.Decimal `json:"balance"`
	Locked  decimal.Decimal `json:"locked"`
}

type rollbackRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// requireIntegrationKey guards a handler with a constant-time shared-secret
// check. An unset key denies everything: the surface must be explicitly
// configured open.
func (s *Server) requireIntegrationKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Integration-Key")
		if s.integrationKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.integrationKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "ERROR", Error: "invalid integration key"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleIntegrationTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "ERROR", Error: "POST required"})
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "malformed request body"})
		return
	}
	if req.IdempotencyKey == "" || req.Player == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "idempotencyKey and player are required"})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = s.ledger.DefaultCurrency()
	}

	var (
		res wallet.Result
		err error
	)
	switch wallet.EntryKind(req.Kind) {
	case wallet.EntryDeposit:
		res, err = s.ledger.Credit(req.Player, currency, req.Amount, req.IdempotencyKey, wallet.EntryDeposit)
	case wallet.EntryWin:
		res, err = s.ledger.Credit(req.Player, currency, req.Amount, req.IdempotencyKey, wallet.EntryWin)
	case wallet.EntryWithdrawal:
		res, err = s.ledger.Debit(req.Player, currency, req.Amount, req.IdempotencyKey, wallet.EntryWithdrawal)
	case wallet.EntryBet:
		res, err = s.ledger.Debit(req.Player, currency, req.Amount, req.IdempotencyKey, wallet.EntryBet)
	default:
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "unknown transaction kind"})
		return
	}

	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			status = http.StatusPaymentRequired
		}
		writeJSON(w, status, transactionResponse{Status: "ERROR", Error: err.Error()})
		return
	}

	s.logger.Info("Integration transaction applied",
		"player", req.Player,
		"kind", req.Kind,
		"key", req.IdempotencyKey,
		"replayed", res.Replayed)
	writeJSON(w, http.StatusOK, transactionResponse{
		Status:   "OK",
		Balance:  res.NewBalance,
		Replayed: res.Replayed,
	})
}

func (s *Server) handleIntegrationBalance(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if player == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "player is required"})
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = s.ledger.DefaultCurrency()
	}

	balance := s.ledger.Balance(player, currency)
	writeJSON(w, http.StatusOK, balanceResponse{
		Status:  "OK",
		Balance: balance.Available,
		Locked:  balance.Locked,
	})
}

func (s *Server) handleIntegrationRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "ERROR", Error: "POST required"})
		return
	}

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "idempotencyKey is required"})
		return
	}

	_, err := s.ledger.Rollback(req.IdempotencyKey)
	switch {
	case errors.Is(err, wallet.ErrAlreadyRolledBack):
		// A retried rollback looks like the original success to the caller.
		writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
	case errors.Is(err, wallet.ErrEntryNotFound):
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "ERROR", Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, statusResponse{Status: "ERROR", Error: err.Error()})
	default:
		s.logger.Info("Integration rollback applied", "key", req.IdempotencyKey)
		writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Ignore write errors, client is gone
}
