package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/persona"
)

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes a plain error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErrorView writes a persona-rendered failure
func respondErrorView(w http.ResponseWriter, err error, view *persona.ErrorView) {
	respondJSON(w, statusFor(err), view)
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrContextNotFound), errors.Is(err, contracts.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrForbiddenContext):
		return http.StatusForbidden
	case errors.Is(err, contracts.ErrDataSourceUnavailable),
		errors.Is(err, contracts.ErrRunCancelled),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
