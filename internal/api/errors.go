package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusOf returns the HTTP status carried by a huma error, or 500.
func statusOf(err error) int {
	var se huma.StatusError
	if errors.As(err, &se) {
		return se.GetStatus()
	}
	return http.StatusInternalServerError
}

// storeError maps storage sentinels to 404s and logs anything else as a 500.
// Errors that already carry a status pass through.
func storeError(logger *slog.Logger, msg string, err error) error {
	var se huma.StatusError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, storage.ErrEventNotFound):
		return huma.Error404NotFound("event not found")
	case errors.Is(err, storage.ErrResponseNotFound):
		return huma.Error404NotFound("response not found")
	case errors.Is(err, storage.ErrGroupNotFound):
		return huma.Error404NotFound("group not found")
	case errors.Is(err, storage.ErrMemberNotFound):
		return huma.Error404NotFound("not a member of the group")
	}
	logger.Error(msg, "error", err)
	return huma.Error500InternalServerError(msg)
}
