package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/storage"
	"github.com/jwebster45206/situation-engine/pkg/validate"
)

// ValidationResponse is the body of POST /v1/rulesets/validate.
type ValidationResponse struct {
	Valid    bool             `json:"valid"`
	Errors   int              `json:"errors"`
	Warnings int              `json:"warnings"`
	Issues   []validate.Issue `json:"issues"`
}

type RuleSetHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewRuleSetHandler(storage storage.Storage, logger *slog.Logger) *RuleSetHandler {
	return &RuleSetHandler{
		storage: storage,
		logger:  logger,
	}
}

// ServeHTTP handles rule set requests
// Routes:
// GET /v1/rulesets           - List bundled rule files
// GET /v1/rulesets/{file}    - Read one rule file
// POST /v1/rulesets/validate - Validate an uploaded rule file
func (h *RuleSetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/rulesets"), "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case path == "validate" && r.Method == http.MethodPost:
		h.handleValidate(w, r)
	case path != "" && path != "validate" && r.Method == http.MethodGet:
		h.handleGet(w, r, path)
	default:
		h.logger.Warn("Method not allowed for rule set endpoint", "method", r.Method, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *RuleSetHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.ListRuleSets(r.Context())
	if err != nil {
		h.logger.Error("Failed to list rule sets", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list rule sets")
		return
	}
	if list == nil {
		list = []storage.RuleSetInfo{}
	}
	writeJSON(w, h.logger, http.StatusOK, list)
}

func (h *RuleSetHandler) handleGet(w http.ResponseWriter, r *http.Request, file string) {
	if strings.Contains(file, "/") || strings.Contains(file, "..") {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid filename")
		return
	}
	rs, err := h.storage.GetRuleSet(r.Context(), file)
	if err != nil {
		if errors.Is(err, storage.ErrRuleSetNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Rule set not found")
			return
		}
		h.logger.Error("Failed to get rule set", "error", err, "file", file)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to retrieve rule set")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, rs)
}

func (h *RuleSetHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.logger, http.StatusRequestEntityTooLarge, "Rule file too large")
		return
	}

	issues, err := validate.Bytes(data, requestFormat(r))
	if err != nil {
		h.logger.Debug("Rule file did not parse", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if issues == nil {
		issues = []validate.Issue{}
	}
	writeJSON(w, h.logger, http.StatusOK, ValidationResponse{
		Valid:    !validate.HasErrors(issues),
		Errors:   validate.Count(issues, validate.SeverityError),
		Warnings: validate.Count(issues, validate.SeverityWarning),
		Issues:   issues,
	})
}

// requestFormat picks YAML from ?format=yaml or a YAML content type.
func requestFormat(r *http.Request) rules.Format {
	if f := strings.ToLower(r.URL.Query().Get("format")); f == "yaml" || f == "yml" {
		return rules.FormatYAML
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mediaType, "yaml") {
		return rules.FormatYAML
	}
	return rules.FormatJSON
}
