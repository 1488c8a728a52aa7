package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// MockStorage is an in-memory Storage for tests. It stores copies, so
// callers cannot alias saved states.
type MockStorage struct {
	mu         sync.RWMutex
	gamestates map[uuid.UUID]*state.GameState
	ruleSets   map[string]*rules.GameRules
	locks      map[uuid.UUID]string
	pingError  error
	saveError  error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage {
	return &MockStorage{
		gamestates: make(map[uuid.UUID]*state.GameState),
		ruleSets:   make(map[string]*rules.GameRules),
		locks:      make(map[uuid.UUID]string),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes SaveGameState fail with err
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// AddRuleSet registers a rule set under a file name
func (m *MockStorage) AddRuleSet(file string, r *rules.GameRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleSets[file] = r
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveGameState(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.gamestates[id] = gs.Clone()
	return nil
}

func (m *MockStorage) LoadGameState(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gs, ok := m.gamestates[id]
	if !ok {
		return nil, nil
	}
	return gs.Clone(), nil
}

func (m *MockStorage) DeleteGameState(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gamestates, id)
	return nil
}

func (m *MockStorage) AcquireLock(ctx context.Context, id uuid.UUID, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[id]; held {
		return false, nil
	}
	m.locks[id] = owner
	return true, nil
}

func (m *MockStorage) ReleaseLock(ctx context.Context, id uuid.UUID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[id] == owner {
		delete(m.locks, id)
	}
	return nil
}

// Locked reports whether a lock is currently held for id
func (m *MockStorage) Locked(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, held := m.locks[id]
	return held
}

func (m *MockStorage) ListRuleSets(ctx context.Context) ([]RuleSetInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RuleSetInfo, 0, len(m.ruleSets))
	for file, r := range m.ruleSets {
		out = append(out, RuleSetInfo{File: file, ID: r.ID, Title: r.Title, Language: r.Language})
	}
	slices.SortFunc(out, func(a, b RuleSetInfo) int { return strings.Compare(a.File, b.File) })
	return out, nil
}

func (m *MockStorage) GetRuleSet(ctx context.Context, file string) (*rules.GameRules, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ruleSets[file]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleSetNotFound, file)
	}
	return r, nil
}
