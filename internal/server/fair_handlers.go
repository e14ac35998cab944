package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dragonbet/casino/internal/fair"
)

// The fair surface lets players audit the house: fetch the commitment
// before play, rotate to reveal the retired secret, and re-derive any
// settled outcome from revealed material.

type playerRequest struct {
	Player string `json:"player"`
}

type clientSeedRequest struct {
	Player     string `json:"player"`
	ClientSeed string `json:"clientSeed"`
}

type verifyRequest struct {
	SecretSeed string      `json:"secretSeed"`
	ClientSeed string      `json:"clientSeed"`
	Nonce      uint64      `json:"nonce"`
	GameKind   fair.Kind   `json:"gameKind"`
	Parameters fair.Params `json:"parameters"`
}

func (s *Server) handleFairCommit(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if player == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "player is required"})
		return
	}

	commitment, err := s.seeds.Commit(player)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "ERROR", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, commitment)
}

func (s *Server) handleFairClientSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "ERROR", Error: "POST required"})
		return
	}

	var req clientSeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Player == "" || req.ClientSeed == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "player and clientSeed are required"})
		return
	}

	if err := s.seeds.SetClientSeed(req.Player, req.ClientSeed); err != nil {
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "ERROR", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
}

func (s *Server) handleFairRotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "ERROR", Error: "POST required"})
		return
	}

	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Player == "" {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "player is required"})
		return
	}

	reveal, err := s.seeds.Rotate(req.Player)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fair.ErrSeedNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, statusResponse{Status: "ERROR", Error: err.Error()})
		return
	}

	s.logger.Info("Seed rotated", "player", req.Player, "revealed_hash", reveal.PreviousHash)
	writeJSON(w, http.StatusOK, reveal)
}

func (s *Server) handleFairVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, statusResponse{Status: "ERROR", Error: "POST required"})
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "malformed request body"})
		return
	}
	if req.SecretSeed == "" || !req.GameKind.Valid() {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: "secretSeed and a known gameKind are required"})
		return
	}

	result, err := fair.Verify(req.SecretSeed, req.ClientSeed, req.Nonce, req.GameKind, req.Parameters)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "ERROR", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
