package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sparkdeck/spark/game"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// errorStatus maps an engine error to an HTTP status and a stable,
// user-facing code. Unknown errors are treated as server faults.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound, "Game session not found"
	case errors.Is(err, game.ErrNoCardsAvailable):
		return http.StatusBadRequest, "No more cards available"
	case errors.Is(err, game.ErrInsufficientCatalog):
		return http.StatusBadRequest, "Not enough cards for requested session length"
	case errors.Is(err, game.ErrSkipsExhausted):
		return http.StatusBadRequest, "No skips remaining"
	case errors.Is(err, game.ErrAlreadyEnded):
		return http.StatusConflict, "Game session already ended"
	case errors.Is(err, game.ErrPersistence):
		return http.StatusServiceUnavailable, "Session store unavailable"
	}
	return http.StatusInternalServerError, "Something went wrong"
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("encode response: %v", err)
	}
}

// respondError writes the failure envelope. Diagnostic details are only
// included when running with --dev.
func respondError(cfg *Config, w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)

	resp := errorResponse{Error: msg}
	if cfg.dev {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}
