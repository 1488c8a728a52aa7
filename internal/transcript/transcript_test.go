package transcript

import (
	"bytes"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

func loadFieldStudy(t *testing.T) *rules.GameRules {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	r, err := rules.Load(filepath.Join(filepath.Dir(file), "..", "..", "data", "rulesets", "field_study.json"))
	require.NoError(t, err)
	return r
}

func playedState(r *rules.GameRules) *state.GameState {
	gs := state.New(r)
	gs.RuleSet = "field_study.json"
	gs.Turn = 2
	gs.Route = "community"
	gs.UpdatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gs.AppendLog(state.LogAction, "talk the fisherman")
	gs.AppendLog(state.LogProcedural, "The fisherman points downstream.")
	gs.AppendLog(state.LogNarration, "Rain needles the brown water.")
	return gs
}

func render(t *testing.T, r *rules.GameRules, gs *state.GameState) string {
	t.Helper()
	pdf := newDocument(r, gs)
	pdf.SetCompression(false)
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.String()
}

func TestWrite(t *testing.T) {
	r := loadFieldStudy(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, playedState(r)))

	out := buf.String()
	assert.True(t, len(out) > 0 && out[:5] == "%PDF-", "not a PDF")
	assert.Contains(t, out[len(out)-8:], "%%EOF")
}

func TestTranscriptContents(t *testing.T) {
	r := loadFieldStudy(t)
	out := render(t, r, playedState(r))

	assert.Contains(t, out, "Field Study: The Silted Delta")
	assert.Contains(t, out, "Investigate the outflow")
	assert.Contains(t, out, "> talk the fisherman")
	assert.Contains(t, out, "The fisherman points downstream.")
	assert.Contains(t, out, "Rain needles the brown water.")
	assert.Contains(t, out, "Route: community")
	assert.Contains(t, out, "Page 1")
}

func TestTranscriptEmptyLog(t *testing.T) {
	r := loadFieldStudy(t)
	gs := state.New(r)
	out := render(t, r, gs)
	assert.Contains(t, out, "Nothing has happened yet.")
	assert.NotContains(t, out, "Route:")
}
