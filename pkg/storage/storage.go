package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

var ErrRuleSetNotFound = errors.New("rule set not found")

// RuleSetInfo summarizes a rule file for listings.
type RuleSetInfo struct {
	File     string `json:"file"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
}

// Storage defines a unified interface for all storage operations.
// Game states and locks live in Redis; rule sets are read from the filesystem.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// GameState operations. LoadGameState returns nil, nil when absent.
	SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error
	LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error)
	DeleteGameState(ctx context.Context, id uuid.UUID) error

	// Per-session lock. AcquireLock returns false if another owner holds it.
	AcquireLock(ctx context.Context, id uuid.UUID, owner string) (bool, error)
	ReleaseLock(ctx context.Context, id uuid.UUID, owner string) error

	// Rule set operations
	ListRuleSets(ctx context.Context) ([]RuleSetInfo, error)
	GetRuleSet(ctx context.Context, file string) (*rules.GameRules, error)
}
