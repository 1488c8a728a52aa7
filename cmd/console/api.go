package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/engine"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// decodeResponse reads a JSON body, turning non-wantStatus replies into errors.
func decodeResponse(resp *http.Response, wantStatus int, what string, out any) error {
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("failed to %s: %s", what, errorResp.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", what, err)
	}
	return nil
}

func postJSON(client *http.Client, url string, v any) (*http.Response, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func listRuleSets(client *http.Client, baseURL string) ([]storage.RuleSetInfo, error) {
	resp, err := client.Get(baseURL + "/v1/rulesets")
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	var list []storage.RuleSetInfo
	if err := decodeResponse(resp, http.StatusOK, "list rule sets", &list); err != nil {
		return nil, err
	}
	return list, nil
}

func createSession(client *http.Client, baseURL string, ruleSetFile string) (*session.View, error) {
	resp, err := postJSON(client, baseURL+"/v1/sessions", map[string]string{"ruleset": ruleSetFile})
	if err != nil {
		return nil, err
	}
	var view session.View
	if err := decodeResponse(resp, http.StatusCreated, "create session", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func getSession(client *http.Client, baseURL string, id uuid.UUID) (*session.View, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/sessions/%s", baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	var view session.View
	if err := decodeResponse(resp, http.StatusOK, "get session", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func sendAction(client *http.Client, baseURL string, id uuid.UUID, req engine.ActionRequest) (*session.Outcome, error) {
	resp, err := postJSON(client, fmt.Sprintf("%s/v1/sessions/%s/actions", baseURL, id), req)
	if err != nil {
		return nil, err
	}
	var out session.Outcome
	if err := decodeResponse(resp, http.StatusOK, "send action", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SSEEvent represents an event from the SSE stream
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// listenToSSE connects to the SSE endpoint and streams events to a channel
func listenToSSE(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, eventChan chan<- SSEEvent) error {
	url := fmt.Sprintf("%s/v1/events/sessions/%s", baseURL, id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Empty line signals end of event
			if currentEvent.Type != "" {
				select {
				case eventChan <- currentEvent:
				case <-ctx.Done():
					return ctx.Err()
				}
				currentEvent = SSEEvent{}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err == nil {
				currentEvent.Data = data
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
