package state

import (
	"testing"

	"github.com/jwebster45206/situation-engine/pkg/rules"
)

func testRules() *rules.GameRules {
	r := &rules.GameRules{
		ID: "field_study",
		Tracks: map[string]rules.TrackDef{
			"eco.pollution": {Name: "Pollution", Value: 2, Max: 10},
			"overfull":      {Name: "Overfull", Value: 12, Max: 5},
		},
		Initial: rules.Initial{
			Situation: "investigate_area",
			Counters:  map[string]rules.Value{"clues": rules.Number(0), "analyzed": rules.Bool(false)},
		},
	}
	r.Situations.Add("investigate_area", rules.Situation{Label: "Investigate"})
	return r
}

func TestNew(t *testing.T) {
	r := testRules()
	gs := New(r)

	if gs.Situation != "investigate_area" {
		t.Errorf("Situation = %q", gs.Situation)
	}
	if gs.RulesID != "field_study" {
		t.Errorf("RulesID = %q", gs.RulesID)
	}
	if got := gs.Tracks["overfull"].Value; got != 5 {
		t.Errorf("overfull value = %d, want clamped 5", got)
	}
	if gs.Log == nil {
		t.Error("Log should be an empty slice")
	}

	// The rule set's initial counters are not shared with the state.
	gs.SetCounter("clues", rules.Number(3))
	if r.Initial.Counters["clues"].Float() != 0 {
		t.Error("New() aliased initial counters")
	}
}

func TestClonedStateIsIndependent(t *testing.T) {
	gs := New(testRules())
	gs.AppendLog(LogProcedural, "first")
	c := gs.Clone()

	c.SetCounter("clues", rules.Number(1))
	c.AddTrack("eco.pollution", 3)
	c.AppendLog(LogNarration, "second")
	c.Log[0].Text = "changed"

	if v, _ := gs.Counter("clues"); v.Float() != 0 {
		t.Errorf("source counter changed: %v", v)
	}
	if gs.Tracks["eco.pollution"].Value != 2 {
		t.Errorf("source track changed: %d", gs.Tracks["eco.pollution"].Value)
	}
	if len(gs.Log) != 1 || gs.Log[0].Text != "first" {
		t.Errorf("source log changed: %+v", gs.Log)
	}

	var nilState *GameState
	if nilState.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestClosedSchema(t *testing.T) {
	gs := New(testRules())

	if gs.SetCounter("ghost", rules.Number(1)) {
		t.Error("SetCounter created an unknown counter")
	}
	if _, ok := gs.Counters["ghost"]; ok {
		t.Error("ghost key present")
	}
	if gs.AddTrack("noise", 1) {
		t.Error("AddTrack accepted an unknown track")
	}
	if _, ok := gs.Tracks["noise"]; ok {
		t.Error("noise key present")
	}
}

func TestAddTrackClamps(t *testing.T) {
	tests := []struct {
		delta int
		want  int
	}{
		{1, 3},
		{-2, 0},
		{-50, 0},
		{8, 10},
		{500, 10},
	}
	for _, tt := range tests {
		gs := New(testRules())
		gs.AddTrack("eco.pollution", tt.delta)
		if got := gs.Tracks["eco.pollution"].Value; got != tt.want {
			t.Errorf("AddTrack(%d) = %d, want %d", tt.delta, got, tt.want)
		}
	}
}

func TestEnv(t *testing.T) {
	gs := New(testRules())
	env := gs.Env(nil)

	if env["route"] != nil {
		t.Errorf("route = %v, want nil when unset", env["route"])
	}
	tracks := env["tracks"].(map[string]any)
	pollution := tracks["eco.pollution"].(map[string]any)
	if pollution["value"] != 2.0 || pollution["max"] != 10.0 || pollution["name"] != "Pollution" {
		t.Errorf("pollution = %v", pollution)
	}
	counters := env["counters"].(map[string]any)
	if counters["analyzed"] != false || counters["clues"] != 0.0 {
		t.Errorf("counters = %v", counters)
	}

	gs.Route = "official"
	if gs.Env(nil)["route"] != "official" {
		t.Error("route not exposed")
	}
}

func TestLoadFillsMissingCollections(t *testing.T) {
	gs, err := Load([]byte(`{"id":"6f1c1d1e-9e0b-4d8a-9a3a-4b0a3e2f8c11","situation":"x","tracks":{"t":{"name":"T","value":9,"max":4}}}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if gs.Counters == nil || gs.Log == nil {
		t.Error("expected non-nil collections")
	}
	if gs.Tracks["t"].Value != 4 {
		t.Errorf("track not clamped on load: %d", gs.Tracks["t"].Value)
	}
	if _, err := Load([]byte(`{"counters":{"a":"b"}}`)); err == nil {
		t.Error("expected error for string counter")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	gs := New(testRules())
	gs.Route = "community"
	gs.NextSituation = "nowhere"
	gs.AppendLogAt(LogProcedural, "investigate_area", "line")

	data, err := gs.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	back, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if back.Route != "community" || back.NextSituation != "nowhere" || len(back.Log) != 1 {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if v, _ := back.Counter("analyzed"); !v.IsBool() {
		t.Error("boolean counter became numeric")
	}
}

func TestCompatible(t *testing.T) {
	r := testRules()
	gs := New(r)
	if err := gs.Compatible(r); err != nil {
		t.Errorf("Compatible() = %v", err)
	}
	gs.Situation = "gone"
	if err := gs.Compatible(r); err == nil {
		t.Error("expected error for unknown situation")
	}
	gs.Situation = "investigate_area"
	gs.RulesID = "other"
	if err := gs.Compatible(r); err == nil {
		t.Error("expected error for foreign rules")
	}
}

func TestRecentLog(t *testing.T) {
	gs := New(testRules())
	for _, s := range []string{"a", "b", "c"} {
		gs.AppendLog(LogNarration, s)
	}
	if got := gs.RecentLog(2); len(got) != 2 || got[0].Text != "b" {
		t.Errorf("RecentLog(2) = %+v", got)
	}
	if got := gs.RecentLog(0); len(got) != 3 {
		t.Errorf("RecentLog(0) = %d entries", len(got))
	}
}
