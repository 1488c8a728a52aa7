// Package validate statically checks rule documents.
//
// The validator reads the generic decoded document rather than the typed
// model so it can tell a missing field from a zero one and see every key
// an effect carries. It never evaluates conditions or touches game state.
package validate

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/jwebster45206/situation-engine/pkg/rules"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding, located by a path such as
// situations.start.on_action[0].do[1] or tracks["eco.pollution"].max.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Path     string   `json:"path"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return Count(issues, SeverityError) > 0
}

// Count returns the number of issues with the given severity.
func Count(issues []Issue, sev Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// Bytes decodes data and validates it.
func Bytes(data []byte, format rules.Format) ([]Issue, error) {
	doc, err := rules.ParseDocument(data, format)
	if err != nil {
		return nil, err
	}
	return Validate(doc), nil
}

// Rules validates an already typed rule set. Rules parsed from bytes are
// also checked in their source form, since marshalling the typed model
// turns missing numbers into zeros.
func Rules(r *rules.GameRules) ([]Issue, error) {
	doc, err := r.Document()
	if err != nil {
		return nil, err
	}
	issues := Validate(doc)
	if src := r.Source(); src != nil {
		for _, i := range Validate(src) {
			if !slices.Contains(issues, i) {
				issues = append(issues, i)
			}
		}
	}
	return issues, nil
}

var topLevelFields = []string{"id", "title", "actions", "tracks", "initial", "situations"}

// Validate checks a decoded rule document. Deep checks are skipped when the
// top-level shape is already broken.
func Validate(doc map[string]any) []Issue {
	v := &validator{}

	for _, field := range []string{"id", "title"} {
		if raw, ok := doc[field]; ok {
			if s, isStr := raw.(string); !isStr || s == "" {
				v.errorf(field, "must be a non-empty string")
			}
		}
	}
	for _, field := range []string{"actions", "tracks", "initial", "situations"} {
		if raw, ok := doc[field]; ok {
			if _, isObj := raw.(map[string]any); !isObj {
				v.errorf(field, "must be an object")
			}
		}
	}
	for _, field := range topLevelFields {
		if _, ok := doc[field]; !ok {
			v.errorf(field, "missing required field")
		}
	}
	if len(v.issues) > 0 {
		return v.issues
	}

	v.actions = doc["actions"].(map[string]any)
	v.tracks = doc["tracks"].(map[string]any)
	v.situations = doc["situations"].(map[string]any)
	initial := doc["initial"].(map[string]any)
	if counters, ok := initial["counters"].(map[string]any); ok {
		v.counters = counters
	}

	v.checkLanguage(doc["language"])
	v.checkRating(doc["rating"])
	v.checkActions()
	v.checkTracks()
	v.checkInitial(initial)
	v.checkSituations()

	if !v.hasEnding() {
		v.warnf("situations", "no situation has ending: true; the scenario never signals completion")
	}
	return v.issues
}

type validator struct {
	issues     []Issue
	actions    map[string]any
	tracks     map[string]any
	situations map[string]any
	counters   map[string]any
}

func (v *validator) errorf(path, format string, args ...any) {
	v.issues = append(v.issues, Issue{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Path: path})
}

func (v *validator) warnf(path, format string, args ...any) {
	v.issues = append(v.issues, Issue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Path: path})
}

func (v *validator) hasEnding() bool {
	for _, raw := range v.situations {
		if sit, ok := raw.(map[string]any); ok {
			if ending, _ := sit["ending"].(bool); ending {
				return true
			}
		}
	}
	return false
}

// child appends a key to a path using dot form for identifiers and
// bracket form for anything else.
func child(parent, key string) string {
	if isIdent(key) {
		if parent == "" {
			return key
		}
		return parent + "." + key
	}
	return parent + "[" + strconv.Quote(key) + "]"
}

func elem(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

func nonEmptyString(raw any) bool {
	s, ok := raw.(string)
	return ok && s != ""
}

// number accepts the numeric types produced by both JSON and YAML decoding.
func number(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
