package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/storage"
	"github.com/jwebster45206/situation-engine/pkg/validate"
)

// maxBodyBytes bounds request bodies, which are rule files at most.
const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error  string           `json:"error"`
	Issues []validate.Issue `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	writeJSON(w, log, status, ErrorResponse{Error: msg})
}

// writeServiceError maps session and storage errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var rsErr *session.RuleSetError
	switch {
	case errors.As(err, &rsErr):
		writeJSON(w, log, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Issues: rsErr.Issues})
	case errors.Is(err, session.ErrInvalidAction):
		writeError(w, log, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, log, http.StatusNotFound, "Session not found")
	case errors.Is(err, storage.ErrRuleSetNotFound):
		writeError(w, log, http.StatusNotFound, "Rule set not found")
	case errors.Is(err, session.ErrSessionBusy):
		writeError(w, log, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrIncompatible):
		writeError(w, log, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error("Request failed", "error", err)
		writeError(w, log, http.StatusInternalServerError, "Internal server error")
	}
}
