package state

import (
	"encoding/json"
	"fmt"

	"github.com/jwebster45206/situation-engine/pkg/rules"
)

// Marshal encodes the state as its persisted JSON document.
func (gs *GameState) Marshal() ([]byte, error) {
	data, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gamestate: %w", err)
	}
	return data, nil
}

// Load decodes a persisted state. Missing collections come back empty,
// never nil, so closed-schema lookups behave the same as on a fresh state.
func Load(data []byte) (*GameState, error) {
	var gs GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gamestate: %w", err)
	}
	if gs.Counters == nil {
		gs.Counters = make(map[string]rules.Value)
	}
	if gs.Tracks == nil {
		gs.Tracks = make(map[string]Track)
	}
	if gs.Log == nil {
		gs.Log = make([]LogEntry, 0)
	}
	for id, t := range gs.Tracks {
		gs.Tracks[id] = t.Clamp()
	}
	return &gs, nil
}

// Compatible reports why a loaded state cannot run against r, or nil.
func (gs *GameState) Compatible(r *rules.GameRules) error {
	if gs.RulesID != "" && gs.RulesID != r.ID {
		return fmt.Errorf("save belongs to rules %q, not %q", gs.RulesID, r.ID)
	}
	if !r.Situations.Has(gs.Situation) {
		return fmt.Errorf("unknown situation %q", gs.Situation)
	}
	return nil
}
