package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/situation-engine/pkg/chat"
)

// MockNarrator is a mock implementation of Narrator for testing
type MockNarrator struct {
	NarrateFunc func(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// Track calls for testing
	NarrateCalls [][]chat.ChatMessage

	mu sync.Mutex // protects all fields above
}

var _ Narrator = (*MockNarrator)(nil)

func NewMockNarrator() *MockNarrator {
	return &MockNarrator{NarrateCalls: make([][]chat.ChatMessage, 0)}
}

func (m *MockNarrator) Narrate(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.NarrateCalls = append(m.NarrateCalls, messages)
	if m.NarrateFunc != nil {
		return m.NarrateFunc(ctx, messages)
	}
	return "The river carries on.", nil
}

// Calls returns how many times Narrate was called
func (m *MockNarrator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.NarrateCalls)
}
