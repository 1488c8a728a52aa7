package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jwebster45206/situation-engine/pkg/chat"
)

const (
	DefaultGeminiTemperature = 0.7
	DefaultGeminiMaxTokens   = 512

	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiNarrator implements Narrator with the Google Gemini API
type GeminiNarrator struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

var _ Narrator = (*GeminiNarrator)(nil)

// NewGeminiNarrator creates a narrator backed by Gemini. Close releases the client.
func NewGeminiNarrator(ctx context.Context, apiKey string, modelName string, logger *slog.Logger) (*GeminiNarrator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiNarrator{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (g *GeminiNarrator) Close() error {
	return g.client.Close()
}

// Narrate sends system messages as the system instruction and everything
// else as chat history ending in the final user message.
func (g *GeminiNarrator) Narrate(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	system, history, last, err := geminiContents(messages)
	if err != nil {
		return "", err
	}

	// A model value carries per-call settings, so each call gets its own.
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(DefaultGeminiTemperature)
	model.SetMaxOutputTokens(DefaultGeminiMaxTokens)
	model.SystemInstruction = system

	cs := model.StartChat()
	cs.History = history

	start := time.Now()
	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}

	attrs := []any{"model", g.modelName, "duration", time.Since(start)}
	if resp.UsageMetadata != nil {
		attrs = append(attrs,
			"prompt_tokens", resp.UsageMetadata.PromptTokenCount,
			"completion_tokens", resp.UsageMetadata.CandidatesTokenCount)
	}
	g.logger.Debug("Narration generated", attrs...)

	return strings.TrimSpace(sb.String()), nil
}

// geminiContents splits chat messages into Gemini's shape. Consecutive
// system messages are joined; the last message must come from the user.
func geminiContents(messages []chat.ChatMessage) (*genai.Content, []*genai.Content, genai.Text, error) {
	if len(messages) == 0 {
		return nil, nil, "", fmt.Errorf("no messages to send")
	}
	final := messages[len(messages)-1]
	if final.Role != chat.ChatRoleUser {
		return nil, nil, "", fmt.Errorf("last message must be from the user, got %q", final.Role)
	}

	var systemParts []string
	var history []*genai.Content
	for _, msg := range messages[:len(messages)-1] {
		switch msg.Role {
		case chat.ChatRoleSystem:
			systemParts = append(systemParts, msg.Content)
		case chat.ChatRoleAgent:
			history = append(history, &genai.Content{Role: geminiRoleModel, Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: geminiRoleUser, Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(systemParts, "\n\n"))}}
	}
	return system, history, genai.Text(final.Content), nil
}
