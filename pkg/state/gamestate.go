package state

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/situation-engine/pkg/expr"
	"github.com/jwebster45206/situation-engine/pkg/rules"
)

// Track is a bounded meter. Value is kept within [0, Max].
type Track struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Max   int    `json:"max"`
}

// Clamp returns the track with Value forced into [0, Max].
func (t Track) Clamp() Track {
	if t.Value > t.Max {
		t.Value = t.Max
	}
	if t.Value < 0 {
		t.Value = 0
	}
	return t
}

type LogKind string

const (
	LogAction     LogKind = "action"     // what the player did
	LogProcedural LogKind = "procedural" // factual line emitted by a rule
	LogNarration  LogKind = "narration"  // prose returned by the narrator
)

// LogEntry is one line of the visible session log.
type LogEntry struct {
	ID        uuid.UUID `json:"id"`
	Kind      LogKind   `json:"kind"`
	Situation string    `json:"situation,omitempty"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// GameState is the save-state of one play session.
type GameState struct {
	ID            uuid.UUID              `json:"id"`                       // Unique ID per session
	RuleSet       string                 `json:"ruleset"`                  // Rule file the session plays
	RulesID       string                 `json:"rules_id,omitempty"`       // GameRules.ID at creation
	Situation     string                 `json:"situation"`                // Current situation id
	Counters      map[string]rules.Value `json:"counters"`                 // Closed set from initial.counters
	Tracks        map[string]Track       `json:"tracks"`                   // Closed set from rules.tracks
	Route         string                 `json:"route,omitempty"`          // Free-form branch tag
	NextSituation string                 `json:"next_situation,omitempty"` // Pending manual transition
	Log           []LogEntry             `json:"log"`
	Turn          int                    `json:"turn"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// New builds the starting state for a rule set.
func New(r *rules.GameRules) *GameState {
	now := time.Now()
	gs := &GameState{
		ID:        uuid.New(),
		RulesID:   r.ID,
		Situation: r.Initial.Situation,
		Counters:  make(map[string]rules.Value, len(r.Initial.Counters)),
		Tracks:    make(map[string]Track, len(r.Tracks)),
		Log:       make([]LogEntry, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	maps.Copy(gs.Counters, r.Initial.Counters)
	for id, def := range r.Tracks {
		gs.Tracks[id] = Track{Name: def.Name, Value: def.Value, Max: def.Max}.Clamp()
	}
	return gs
}

// Clone returns a deep copy. Nil maps and slices stay nil so a clone
// compares equal to its source.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	c := *gs
	c.Counters = maps.Clone(gs.Counters)
	c.Tracks = maps.Clone(gs.Tracks)
	if gs.Log != nil {
		c.Log = make([]LogEntry, len(gs.Log))
		copy(c.Log, gs.Log)
	}
	return &c
}

// Counter returns a counter value.
func (gs *GameState) Counter(key string) (rules.Value, bool) {
	v, ok := gs.Counters[key]
	return v, ok
}

// SetCounter assigns an existing counter. Unknown keys are left alone
// and reported with false.
func (gs *GameState) SetCounter(key string, v rules.Value) bool {
	if _, ok := gs.Counters[key]; !ok {
		return false
	}
	gs.Counters[key] = v
	return true
}

// Track returns a track by id.
func (gs *GameState) Track(id string) (Track, bool) {
	t, ok := gs.Tracks[id]
	return t, ok
}

// AddTrack applies a signed delta to an existing track and re-clamps it.
func (gs *GameState) AddTrack(id string, delta int) bool {
	t, ok := gs.Tracks[id]
	if !ok {
		return false
	}
	t.Value += delta
	gs.Tracks[id] = t.Clamp()
	return true
}

// AppendLog adds an entry tagged with the current situation.
func (gs *GameState) AppendLog(kind LogKind, text string) LogEntry {
	return gs.AppendLogAt(kind, gs.Situation, text)
}

// AppendLogAt adds an entry tagged with the given situation.
func (gs *GameState) AppendLogAt(kind LogKind, situation, text string) LogEntry {
	entry := LogEntry{
		ID:        uuid.New(),
		Kind:      kind,
		Situation: situation,
		Text:      text,
		At:        time.Now(),
	}
	gs.Log = append(gs.Log, entry)
	return entry
}

// RecentLog returns up to n trailing log entries.
func (gs *GameState) RecentLog(n int) []LogEntry {
	if n <= 0 || len(gs.Log) <= n {
		return gs.Log
	}
	return gs.Log[len(gs.Log)-n:]
}

// Env exposes the state to condition expressions. player may be nil.
func (gs *GameState) Env(player any) expr.Env {
	counters := make(map[string]any, len(gs.Counters))
	for k, v := range gs.Counters {
		counters[k] = v.Any()
	}
	tracks := make(map[string]any, len(gs.Tracks))
	for k, t := range gs.Tracks {
		tracks[k] = map[string]any{
			"name":  t.Name,
			"value": float64(t.Value),
			"max":   float64(t.Max),
		}
	}
	env := expr.Env{
		"counters": counters,
		"tracks":   tracks,
		"route":    nil,
		"player":   player,
	}
	if gs.Route != "" {
		env["route"] = gs.Route
	}
	return env
}
