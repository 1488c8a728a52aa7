package services

import (
	"context"

	"github.com/jwebster45206/situation-engine/pkg/chat"
)

// Narrator turns prompt messages into prose. Its output is opaque to the
// engine and only ever appended to the session log.
type Narrator interface {
	Narrate(ctx context.Context, messages []chat.ChatMessage) (string, error)
}
