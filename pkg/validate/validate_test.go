package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/situation-engine/pkg/rules"
)

func rulesetPath(t *testing.T, name string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "data", "rulesets", name)
}

func fieldStudyDoc(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(rulesetPath(t, "field_study.json"))
	require.NoError(t, err)
	doc, err := rules.ParseDocument(data, rules.FormatJSON)
	require.NoError(t, err)
	return doc
}

func obj(t *testing.T, m map[string]any, path ...string) map[string]any {
	t.Helper()
	cur := m
	for _, p := range path {
		next, ok := cur[p].(map[string]any)
		require.True(t, ok, "no object at %s", p)
		cur = next
	}
	return cur
}

func effects(t *testing.T, doc map[string]any, sit string, rule int, list string) []any {
	t.Helper()
	rs := obj(t, doc, "situations", sit)["on_action"].([]any)
	return rs[rule].(map[string]any)[list].([]any)
}

func TestBundledRuleSetsAreClean(t *testing.T) {
	for _, name := range []string{"field_study.json", "harbor_watch.yaml"} {
		t.Run(name, func(t *testing.T) {
			data, err := os.ReadFile(rulesetPath(t, name))
			require.NoError(t, err)
			format, err := rules.FormatFromPath(name)
			require.NoError(t, err)
			issues, err := Bytes(data, format)
			require.NoError(t, err)
			assert.Empty(t, issues)
		})
	}
}

func TestMissingTrackMax(t *testing.T) {
	doc := fieldStudyDoc(t)
	delete(obj(t, doc, "tracks", "eco.pollution"), "max")

	issues := Validate(doc)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, `tracks["eco.pollution"].max`, issues[0].Path)
}

func TestNoEndingIsSingleWarning(t *testing.T) {
	doc := fieldStudyDoc(t)
	for _, id := range []string{"river_crisis", "final_report"} {
		delete(obj(t, doc, "situations", id), "ending")
	}

	issues := Validate(doc)
	assert.Equal(t, 0, Count(issues, SeverityError))
	require.Equal(t, 1, Count(issues, SeverityWarning))
	assert.Equal(t, "situations", issues[0].Path)
	assert.False(t, HasErrors(issues))
}

func TestTopLevelShortCircuit(t *testing.T) {
	doc := fieldStudyDoc(t)
	delete(doc, "tracks")
	delete(doc, "title")
	// Deep problems are not reported while the top level is broken.
	obj(t, doc, "actions", "observe")["icon"] = ""

	issues := Validate(doc)
	require.Len(t, issues, 2)
	paths := []string{issues[0].Path, issues[1].Path}
	assert.ElementsMatch(t, []string{"title", "tracks"}, paths)
	for _, i := range issues {
		assert.Equal(t, SeverityError, i.Severity)
	}
}

func TestTopLevelWrongTypes(t *testing.T) {
	issues := Validate(map[string]any{
		"id": 7, "title": "x", "actions": []any{}, "tracks": map[string]any{},
		"initial": map[string]any{}, "situations": map[string]any{},
	})
	require.Len(t, issues, 2)
	assert.Equal(t, "id", issues[0].Path)
	assert.Equal(t, "actions", issues[1].Path)
}

func TestStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, doc map[string]any)
		path    string
		warning bool
	}{
		{
			name:   "action missing label",
			mutate: func(t *testing.T, doc map[string]any) { delete(obj(t, doc, "actions", "talk"), "label") },
			path:   "actions.talk.label",
		},
		{
			name:   "track missing name",
			mutate: func(t *testing.T, doc map[string]any) { delete(obj(t, doc, "tracks", "trust"), "name") },
			path:   "tracks.trust.name",
		},
		{
			name:   "situation missing label",
			mutate: func(t *testing.T, doc map[string]any) { delete(obj(t, doc, "situations", "technical_ops"), "label") },
			path:   "situations.technical_ops.label",
		},
		{
			name:   "situation missing on_action",
			mutate: func(t *testing.T, doc map[string]any) { delete(obj(t, doc, "situations", "river_crisis"), "on_action") },
			path:   "situations.river_crisis.on_action",
		},
		{
			name: "unknown actionId",
			mutate: func(t *testing.T, doc map[string]any) {
				rs := obj(t, doc, "situations", "technical_ops")["on_action"].([]any)
				rs[0].(map[string]any)["when"].(map[string]any)["actionId"] = "dance"
			},
			path: "situations.technical_ops.on_action[0].when.actionId",
		},
		{
			name: "two action keys",
			mutate: func(t *testing.T, doc map[string]any) {
				effects(t, doc, "investigate_area", 0, "do")[0].(map[string]any)["track"] = "trust,1"
			},
			path: "situations.investigate_area.on_action[0].do[0]",
		},
		{
			name: "no action key",
			mutate: func(t *testing.T, doc map[string]any) {
				effects(t, doc, "investigate_area", 0, "do")[0] = map[string]any{"cap": 2.0}
			},
			path: "situations.investigate_area.on_action[0].do[0]",
		},
		{
			name: "log not last",
			mutate: func(t *testing.T, doc map[string]any) {
				list := effects(t, doc, "investigate_area", 0, "do")
				list[0], list[1] = list[1], list[0]
			},
			path: "situations.investigate_area.on_action[0].do[0].log",
		},
		{
			name: "unknown counter",
			mutate: func(t *testing.T, doc map[string]any) {
				effects(t, doc, "investigate_area", 1, "do")[0].(map[string]any)["add"] = "counters.specimens,1"
			},
			path: "situations.investigate_area.on_action[1].do[0].add",
		},
		{
			name: "unknown track",
			mutate: func(t *testing.T, doc map[string]any) {
				effects(t, doc, "investigate_area", 1, "fail")[0].(map[string]any)["track"] = "noise,1"
			},
			path: "situations.investigate_area.on_action[1].fail[0].track",
		},
		{
			name: "bad require expression",
			mutate: func(t *testing.T, doc map[string]any) {
				rs := obj(t, doc, "situations", "technical_ops")["on_action"].([]any)
				rs[0].(map[string]any)["when"].(map[string]any)["require"] = "counters.samples >="
			},
			path: "situations.technical_ops.on_action[0].when.require",
		},
		{
			name: "bad target pattern",
			mutate: func(t *testing.T, doc map[string]any) {
				rs := obj(t, doc, "situations", "investigate_area")["on_action"].([]any)
				rs[2].(map[string]any)["when"].(map[string]any)["targetPattern"] = "ranger|(warden"
			},
			path: "situations.investigate_area.on_action[2].when.targetPattern",
		},
		{
			name: "unknown effect key",
			mutate: func(t *testing.T, doc map[string]any) {
				effects(t, doc, "investigate_area", 0, "do")[0].(map[string]any)["unless"] = "x"
			},
			path: "situations.investigate_area.on_action[0].do[0].unless",
		},
		{
			name:   "initial situation missing",
			mutate: func(t *testing.T, doc map[string]any) { obj(t, doc, "initial")["situation"] = "lobby" },
			path:   "initial.situation",
		},
		{
			name: "next_situation to nowhere",
			mutate: func(t *testing.T, doc map[string]any) {
				effects(t, doc, "technical_ops", 0, "do")[1].(map[string]any)["set"] = "next_situation,epilogue"
			},
			path:    "situations.technical_ops.on_action[0].do[1].set",
			warning: true,
		},
		{
			name: "unknown allowed action",
			mutate: func(t *testing.T, doc map[string]any) {
				obj(t, doc, "situations", "final_report")["allowed_actions"] = []any{"report", "celebrate"}
			},
			path:    "situations.final_report.allowed_actions[1]",
			warning: true,
		},
		{
			name:    "track value out of range",
			mutate:  func(t *testing.T, doc map[string]any) { obj(t, doc, "tracks", "trust")["value"] = 9.0 },
			path:    "tracks.trust.value",
			warning: true,
		},
		{
			name:    "unknown rating",
			mutate:  func(t *testing.T, doc map[string]any) { doc["rating"] = "NC-17" },
			path:    "rating",
			warning: true,
		},
		{
			name:   "rating not a string",
			mutate: func(t *testing.T, doc map[string]any) { doc["rating"] = 13.0 },
			path:   "rating",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fieldStudyDoc(t)
			tt.mutate(t, doc)
			issues := Validate(doc)
			require.Len(t, issues, 1, "issues: %v", issues)
			assert.Equal(t, tt.path, issues[0].Path)
			want := SeverityError
			if tt.warning {
				want = SeverityWarning
			}
			assert.Equal(t, want, issues[0].Severity, issues[0].Message)
		})
	}
}

func TestRulesTyped(t *testing.T) {
	r, err := rules.Load(rulesetPath(t, "field_study.json"))
	require.NoError(t, err)
	issues, err := Rules(r)
	require.NoError(t, err)
	assert.Empty(t, issues)

	r.Tracks["trust"] = rules.TrackDef{Name: "Trust", Value: 1, Max: 0}
	issues, err = Rules(r)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
}

func TestRulesTypedKeepsSourceFields(t *testing.T) {
	doc := fieldStudyDoc(t)
	delete(obj(t, doc, "tracks", "trust"), "max")
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	r, err := rules.Parse(data, rules.FormatJSON)
	require.NoError(t, err)
	issues, err := Rules(r)
	require.NoError(t, err)
	require.True(t, HasErrors(issues))
	assert.Contains(t, issues, Issue{Severity: SeverityError, Message: "missing required numeric field", Path: "tracks.trust.max"})
}

func TestIssueString(t *testing.T) {
	i := Issue{Severity: SeverityError, Message: "missing required field", Path: "id"}
	assert.Equal(t, "error: id: missing required field", i.String())
}
