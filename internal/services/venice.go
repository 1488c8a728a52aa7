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
	veniceBaseURL = "https://api.venice.ai/api/v1"

	DefaultVeniceTemperature = 0.7
	DefaultVeniceMaxTokens   = 512
)

// VeniceNarrator narrates through Venice's OpenAI-style chat completions.
type VeniceNarrator struct {
	apiKey    string
	modelName string
	baseURL   string
	client    *http.Client
	logger    *slog.Logger
}

var _ Narrator = (*VeniceNarrator)(nil)

// veniceRequest turns off Venice's own system prompt and web search, so
// narration only sees what the session sends.
type veniceRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
	Venice      struct {
		IncludeSystemPrompt bool   `json:"include_venice_system_prompt"`
		WebSearch           string `json:"enable_web_search"`
	} `json:"venice_parameters"`
}

type veniceReply struct {
	Choices []struct {
		Message chat.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

func NewVeniceNarrator(apiKey string, modelName string, logger *slog.Logger) *VeniceNarrator {
	return &VeniceNarrator{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   veniceBaseURL,
		client:    newHTTPClient(),
		logger:    logger,
	}
}

// WithBaseURL points the client at another endpoint (tests, proxies).
func (v *VeniceNarrator) WithBaseURL(url string) *VeniceNarrator {
	v.baseURL = strings.TrimRight(url, "/")
	return v
}

// Narrate sends the prompt unchanged; system messages stay inline.
func (v *VeniceNarrator) Narrate(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	body := veniceRequest{
		Model:       v.modelName,
		Messages:    messages,
		Temperature: DefaultVeniceTemperature,
		MaxTokens:   DefaultVeniceMaxTokens,
	}
	body.Venice.WebSearch = "off"

	start := time.Now()
	var reply veniceReply
	err := postJSON(ctx, v.client, v.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + v.apiKey,
	}, body, &reply)
	if err != nil {
		return "", err
	}
	if reply.Error != nil {
		return "", reply.Error
	}
	if len(reply.Choices) == 0 {
		return "", fmt.Errorf("narrator returned no choices")
	}

	v.logger.Debug("Narration generated",
		"model", v.modelName,
		"duration", time.Since(start),
		"prompt_tokens", reply.Usage.PromptTokens,
		"completion_tokens", reply.Usage.CompletionTokens)
	return strings.TrimSpace(reply.Choices[0].Message.Content), nil
}
