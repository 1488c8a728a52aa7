package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/situation-engine/pkg/chat"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicTemperature = 0.7
	DefaultAnthropicMaxTokens   = 600
)

// AnthropicNarrator narrates through the Anthropic Messages API.
type AnthropicNarrator struct {
	apiKey    string
	modelName string
	baseURL   string
	client    *http.Client
	logger    *slog.Logger
}

var _ Narrator = (*AnthropicNarrator)(nil)

// anthropicRequest carries the system prompt beside the turns, not among them.
type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []chat.ChatMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

func NewAnthropicNarrator(apiKey string, modelName string, logger *slog.Logger) *AnthropicNarrator {
	return &AnthropicNarrator{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   anthropicBaseURL,
		client:    newHTTPClient(),
		logger:    logger,
	}
}

// WithBaseURL points the client at another endpoint (tests, proxies).
func (a *AnthropicNarrator) WithBaseURL(url string) *AnthropicNarrator {
	a.baseURL = strings.TrimRight(url, "/")
	return a
}

// systemPrompt pulls the system messages out of a prompt, joined by blank
// lines, and returns the remaining turns in order.
func systemPrompt(messages []chat.ChatMessage) (string, []chat.ChatMessage) {
	var system []string
	turns := make([]chat.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == chat.ChatRoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

func (a *AnthropicNarrator) Narrate(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	system, turns := systemPrompt(messages)
	if len(turns) == 0 {
		return "", fmt.Errorf("narration needs at least one non-system message")
	}

	start := time.Now()
	var reply anthropicReply
	err := postJSON(ctx, a.client, a.baseURL+"/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}, anthropicRequest{
		Model:       a.modelName,
		System:      system,
		Messages:    turns,
		MaxTokens:   DefaultAnthropicMaxTokens,
		Temperature: DefaultAnthropicTemperature,
	}, &reply)
	if err != nil {
		return "", err
	}
	if reply.Error != nil {
		return "", reply.Error
	}

	var sb strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	a.logger.Debug("Narration generated",
		"model", a.modelName,
		"duration", time.Since(start),
		"prompt_tokens", reply.Usage.InputTokens,
		"completion_tokens", reply.Usage.OutputTokens)
	return strings.TrimSpace(sb.String()), nil
}
