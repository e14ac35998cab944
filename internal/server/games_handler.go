package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dragonbet/casino/internal/games"
)

// handleGamesPlay resolves one instant wager per request. Session auth runs
// over a bearer token so the same JWT works for sockets and HTTP.
func (s *Server) handleGamesPlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "ERROR", Error: "POST required"})
		return
	}
	if s.games == nil {
		writeJSON(w, http.StatusNotImplemented, statusResponse{Status: "ERROR", Error: "instant games disabled"})
		return
	}

	player, err := s.bearerPlayer(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "ERROR", Error: err.Error()})
		return
	}

	var req games.PlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "malformed request body"})
		return
	}
	// The session decides who is playing, never the body.
	req.Player = player

	result, err := s.games.Play(req)
	if err != nil {
		status := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, games.ErrUnknownGame),
			errors.Is(err, games.ErrInvalidTarget),
			errors.Is(err, games.ErrBetAmountRange):
			status = http.StatusBadRequest
		case errors.Is(err, games.ErrInsufficientFunds):
			status = http.StatusPaymentRequired
		}
		writeJSON(w, status, statusResponse{Status: "ERROR", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) bearerPlayer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrTokenInvalid
	}
	return s.auth.VerifyToken(token)
}
