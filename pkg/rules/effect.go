package rules

import (
	"fmt"
	"strings"
)

// Effect is one item of a do or fail list. Exactly one of the action fields
// is expected to be set; If and Cap are modifiers.
type Effect struct {
	If  string   `json:"if,omitempty" yaml:"if,omitempty"`
	Cap *float64 `json:"cap,omitempty" yaml:"cap,omitempty"`

	Add       *string `json:"add,omitempty" yaml:"add,omitempty"`
	Set       *string `json:"set,omitempty" yaml:"set,omitempty"`
	Track     *string `json:"track,omitempty" yaml:"track,omitempty"`
	Log       *string `json:"log,omitempty" yaml:"log,omitempty"`
	Secret    *string `json:"secret,omitempty" yaml:"secret,omitempty"`
	Agreement *string `json:"agreement,omitempty" yaml:"agreement,omitempty"`
}

// EffectKind names an effect variant.
type EffectKind string

const (
	KindNone      EffectKind = ""
	KindAdd       EffectKind = "add"
	KindSet       EffectKind = "set"
	KindTrack     EffectKind = "track"
	KindLog       EffectKind = "log"
	KindSecret    EffectKind = "secret"
	KindAgreement EffectKind = "agreement"
)

// ActionKeys lists every effect variant key.
var ActionKeys = []EffectKind{KindAdd, KindSet, KindTrack, KindLog, KindSecret, KindAgreement}

// ModifierKeys lists the keys allowed next to the action key.
var ModifierKeys = []string{"if", "cap"}

// IsCue reports whether the kind is a narrative-only cue.
func (k EffectKind) IsCue() bool {
	return k == KindLog || k == KindSecret || k == KindAgreement
}

// Kind returns the variant of the effect and its payload.
// When more than one action field is set the first in ActionKeys order wins.
func (e *Effect) Kind() (EffectKind, string) {
	switch {
	case e.Add != nil:
		return KindAdd, *e.Add
	case e.Set != nil:
		return KindSet, *e.Set
	case e.Track != nil:
		return KindTrack, *e.Track
	case e.Log != nil:
		return KindLog, *e.Log
	case e.Secret != nil:
		return KindSecret, *e.Secret
	case e.Agreement != nil:
		return KindAgreement, *e.Agreement
	}
	return KindNone, ""
}

// SplitPayload splits "key,value" at the first comma and trims both halves.
func SplitPayload(payload string) (key, value string, err error) {
	key, value, ok := strings.Cut(payload, ",")
	if !ok {
		return "", "", fmt.Errorf("payload %q is not of the form key,value", payload)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", fmt.Errorf("payload %q has an empty key", payload)
	}
	return key, value, nil
}

// CounterKey strips the optional "counters." prefix from an add/set target.
func CounterKey(key string) string {
	return strings.TrimPrefix(key, "counters.")
}

// Scalar targets that set may assign besides counters.
const (
	ScalarRoute         = "route"
	ScalarNextSituation = "next_situation"
)

// Constructors used by tests and scripted overrides.

func AddEffect(payload string) Effect       { return Effect{Add: &payload} }
func SetEffect(payload string) Effect       { return Effect{Set: &payload} }
func TrackEffect(payload string) Effect     { return Effect{Track: &payload} }
func LogEffect(message string) Effect       { return Effect{Log: &message} }
func SecretEffect(message string) Effect    { return Effect{Secret: &message} }
func AgreementEffect(message string) Effect { return Effect{Agreement: &message} }

// WithIf returns a copy of the effect guarded by cond.
func (e Effect) WithIf(cond string) Effect {
	e.If = cond
	return e
}

// WithCap returns a copy of the effect clamped to limit.
func (e Effect) WithCap(limit float64) Effect {
	e.Cap = &limit
	return e
}
