package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// narratorTimeout bounds a single narration round trip.
const narratorTimeout = 60 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: narratorTimeout}
}

// postJSON sends in as a JSON body and decodes a 200 reply into out.
// Any other status comes back as an error carrying the reply body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("narrator request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read narrator reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("narrator returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse narrator reply: %w", err)
	}
	return nil
}

// apiError is the error object both hosted APIs put in a failed reply.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Type == "" {
		return "narrator error: " + e.Message
	}
	return fmt.Sprintf("narrator error (%s): %s", e.Type, e.Message)
}
