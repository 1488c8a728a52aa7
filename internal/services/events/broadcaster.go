package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeActionProcessed  EventType = "action.processed"
	EventTypeSituationChanged EventType = "situation.changed"
	EventTypeSessionDeleted   EventType = "session.deleted"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Turn      int            `json:"turn,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher is what the session service needs from a broadcaster.
type Publisher interface {
	PublishActionProcessed(ctx context.Context, sessionID uuid.UUID, turn int, actionID string, logs []string) error
	PublishSituationChanged(ctx context.Context, sessionID uuid.UUID, turn int, from, to string, auto bool) error
	PublishSessionDeleted(ctx context.Context, sessionID uuid.UUID) error
}

// Broadcaster publishes session events to Redis Pub/Sub for SSE distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Channel returns the pub/sub channel for a session.
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-events:%s", sessionID.String())
}

// PublishActionProcessed publishes an action.processed event
func (b *Broadcaster) PublishActionProcessed(ctx context.Context, sessionID uuid.UUID, turn int, actionID string, logs []string) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeActionProcessed,
		SessionID: sessionID.String(),
		Turn:      turn,
		Data: map[string]any{
			"action_id": actionID,
			"logs":      logs,
		},
	})
}

// PublishSituationChanged publishes a situation.changed event
func (b *Broadcaster) PublishSituationChanged(ctx context.Context, sessionID uuid.UUID, turn int, from, to string, auto bool) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeSituationChanged,
		SessionID: sessionID.String(),
		Turn:      turn,
		Data: map[string]any{
			"from": from,
			"to":   to,
			"auto": auto,
		},
	})
}

// PublishSessionDeleted publishes a session.deleted event
func (b *Broadcaster) PublishSessionDeleted(ctx context.Context, sessionID uuid.UUID) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeSessionDeleted,
		SessionID: sessionID.String(),
	})
}

func (b *Broadcaster) publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published", "channel", channel, "event_type", event.Type)
	return nil
}
