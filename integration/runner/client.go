package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/engine"
)

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.Status, e.Body)
}

// CreateSession starts a session on ruleSet via POST /v1/sessions.
func CreateSession(ctx context.Context, client *http.Client, baseURL, ruleSet string) (*session.View, error) {
	var view session.View
	body := map[string]string{"ruleset": ruleSet}
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/sessions", body, http.StatusCreated, &view); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &view, nil
}

// GetSession fetches the current view of a session.
func GetSession(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) (*session.View, error) {
	var view session.View
	if err := doJSON(ctx, client, http.MethodGet, baseURL+"/v1/sessions/"+id.String(), nil, http.StatusOK, &view); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &view, nil
}

// PostAction sends one action and returns the processed outcome.
func PostAction(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, req engine.ActionRequest) (*session.Outcome, error) {
	var out session.Outcome
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/v1/sessions/"+id.String()+"/actions", req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func doJSON(ctx context.Context, client *http.Client, method, url string, in any, want int, out any) error {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
