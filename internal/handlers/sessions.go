package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/situation-engine/internal/logger"
	"github.com/jwebster45206/situation-engine/internal/middleware"
	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/engine"
)

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	RuleSet string `json:"ruleset"`
}

type SessionHandler struct {
	sessions *session.Service
	logger   *slog.Logger
}

func NewSessionHandler(sessions *session.Service, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// ServeHTTP handles HTTP requests for play sessions
// Routes:
// POST /v1/sessions                - Start a session on a rule file
// POST /v1/sessions/import         - Store an exported save under a new id
// GET /v1/sessions/{id}            - Read a session
// DELETE /v1/sessions/{id}         - Delete a session
// POST /v1/sessions/{id}/actions   - Apply one action
// GET /v1/sessions/{id}/transcript - Download the session log as a PDF
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithRequestID(h.logger, middleware.RequestID(r.Context()))

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleCreate(w, r, log)
		return
	}
	if path == "import" {
		if r.Method != http.MethodPost {
			writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleImport(w, r, log)
		return
	}

	parts := strings.Split(path, "/")
	id, err := uuid.Parse(parts[0])
	if err != nil {
		log.Warn("Invalid session ID", "id", parts[0], "error", err)
		writeError(w, log, http.StatusBadRequest, "Invalid session ID format")
		return
	}
	log = logger.WithSession(log, id.String())

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, log, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, log, id)
	case len(parts) == 2 && parts[1] == "actions" && r.Method == http.MethodPost:
		h.handleAction(w, r, log, id)
	case len(parts) == 2 && parts[1] == "transcript" && r.Method == http.MethodGet:
		h.handleTranscript(w, r, log, id)
	case len(parts) > 2 || (len(parts) == 2 && parts[1] != "actions" && parts[1] != "transcript"):
		writeError(w, log, http.StatusNotFound, "Not found")
	default:
		log.Warn("Method not allowed for session endpoint", "method", r.Method)
		writeError(w, log, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	var req CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, log, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.RuleSet == "" {
		writeError(w, log, http.StatusBadRequest, "ruleset is required")
		return
	}

	view, err := h.sessions.Create(r.Context(), req.RuleSet)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusCreated, view)
}

func (h *SessionHandler) handleImport(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, log, http.StatusRequestEntityTooLarge, "Save too large")
		return
	}
	view, err := h.sessions.Import(r.Context(), data)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusCreated, view)
}

func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request, log *slog.Logger, id uuid.UUID) {
	view, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, view)
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, log *slog.Logger, id uuid.UUID) {
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		writeServiceError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleTranscript(w http.ResponseWriter, r *http.Request, log *slog.Logger, id uuid.UUID) {
	// Rendered into memory first so failures still get a JSON error.
	var buf bytes.Buffer
	if err := h.sessions.Transcript(r.Context(), id, &buf); err != nil {
		writeServiceError(w, log, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error("Failed to write transcript", "error", err)
	}
}

func (h *SessionHandler) handleAction(w http.ResponseWriter, r *http.Request, log *slog.Logger, id uuid.UUID) {
	var req engine.ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, log, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	out, err := h.sessions.Act(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, out)
}
