package rules

import "strconv"

// GameRules is the immutable rule document for one scenario.
// It is authored outside the engine and loaded from JSON or YAML.
type GameRules struct {
	ID          string              `json:"id" yaml:"id"`
	Version     string              `json:"version,omitempty" yaml:"version,omitempty"` // carried, never interpreted
	Title       string              `json:"title" yaml:"title"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Language    string              `json:"language,omitempty" yaml:"language,omitempty"` // BCP 47 tag, e.g. "en" or "pt-BR"
	Rating      string              `json:"rating,omitempty" yaml:"rating,omitempty"`     // content rating for narration
	Actions     map[string]Action   `json:"actions" yaml:"actions"`
	Tracks      map[string]TrackDef `json:"tracks" yaml:"tracks"`
	Player      *PlayerProfile      `json:"player,omitempty" yaml:"player,omitempty"`
	Initial     Initial             `json:"initial" yaml:"initial"`
	Situations  Situations          `json:"situations" yaml:"situations"`

	source map[string]any // generic form of the bytes Parse read, if any
}

// Content ratings. An empty rating narrates without restrictions.
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG-13"
	RatingR    = "R"
)

// Ratings lists the accepted content ratings.
var Ratings = []string{RatingG, RatingPG, RatingPG13, RatingR}

// Action is one entry of the action catalog.
type Action struct {
	Label       string `json:"label" yaml:"label"`
	Icon        string `json:"icon" yaml:"icon"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TrackDef declares a bounded meter and its starting value.
type TrackDef struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
	Max   int    `json:"max" yaml:"max"`
}

// Initial holds the starting situation and counter values.
type Initial struct {
	Situation string           `json:"situation" yaml:"situation"`
	Counters  map[string]Value `json:"counters,omitempty" yaml:"counters,omitempty"`
}

// PlayerProfile describes the player character exposed to conditions as `player`.
type PlayerProfile struct {
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	HP         int            `json:"hp,omitempty" yaml:"hp,omitempty"`
	MaxHP      int            `json:"max_hp,omitempty" yaml:"max_hp,omitempty"`
	AC         int            `json:"ac,omitempty" yaml:"ac,omitempty"`
	Attributes map[string]int `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Situation is a node in the scenario graph.
type Situation struct {
	Label          string       `json:"label" yaml:"label"`
	AllowedActions []string     `json:"allowed_actions,omitempty" yaml:"allowed_actions,omitempty"` // advisory only
	OnAction       []ActionRule `json:"on_action" yaml:"on_action"`
	AutoEnterIf    string       `json:"auto_enter_if,omitempty" yaml:"auto_enter_if,omitempty"`
	Ending         bool         `json:"ending,omitempty" yaml:"ending,omitempty"`
	Scene          string       `json:"scene,omitempty" yaml:"scene,omitempty"`     // narration seed text
	Targets        []string     `json:"targets,omitempty" yaml:"targets,omitempty"` // known targets offered to narrator and UI
}

// ActionRule is one entry of a situation's on_action list.
type ActionRule struct {
	ID   string   `json:"id,omitempty" yaml:"id,omitempty"`
	When When     `json:"when" yaml:"when"`
	Do   []Effect `json:"do,omitempty" yaml:"do,omitempty"`
	Fail []Effect `json:"fail,omitempty" yaml:"fail,omitempty"`
}

// When is the trigger of an ActionRule. Every non-empty field must hold.
type When struct {
	ActionID      string `json:"actionId" yaml:"actionId"`
	TargetPattern string `json:"targetPattern,omitempty" yaml:"targetPattern,omitempty"`
	TextRegex     string `json:"textRegex,omitempty" yaml:"textRegex,omitempty"`
	Require       string `json:"require,omitempty" yaml:"require,omitempty"`
}

// Effects returns the do list when success is true and the fail list otherwise.
// A nil result means the rule has nothing to apply for that outcome.
func (r *ActionRule) Effects(success bool) []Effect {
	if success {
		return r.Do
	}
	return r.Fail
}

// Label returns the rule id, or a positional name when the rule has none.
func (r *ActionRule) Label(index int) string {
	if r.ID != "" {
		return r.ID
	}
	return "on_action[" + strconv.Itoa(index) + "]"
}

// HasEnding reports whether any situation is flagged as an ending.
func (g *GameRules) HasEnding() bool {
	for _, id := range g.Situations.IDs() {
		if s, _ := g.Situations.Get(id); s != nil && s.Ending {
			return true
		}
	}
	return false
}
