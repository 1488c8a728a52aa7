package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/situation-engine/internal/services"
	"github.com/jwebster45206/situation-engine/pkg/chat"
	"github.com/jwebster45206/situation-engine/pkg/engine"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

const fieldStudy = "field_study.json"

type publishedEvent struct {
	kind     string
	turn     int
	from, to string
	logs     []string
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *mockPublisher) PublishActionProcessed(ctx context.Context, sessionID uuid.UUID, turn int, actionID string, logs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{kind: "action", turn: turn, logs: logs})
	return m.err
}

func (m *mockPublisher) PublishSituationChanged(ctx context.Context, sessionID uuid.UUID, turn int, from, to string, auto bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{kind: "situation", turn: turn, from: from, to: to})
	return m.err
}

func (m *mockPublisher) PublishSessionDeleted(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{kind: "deleted"})
	return m.err
}

func loadFieldStudy(t *testing.T) *rules.GameRules {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	r, err := rules.Load(filepath.Join(filepath.Dir(file), "..", "..", "data", "rulesets", fieldStudy))
	require.NoError(t, err)
	return r
}

type fixture struct {
	svc       *Service
	store     *storage.MockStorage
	narrator  *services.MockNarrator
	publisher *mockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMockStorage()
	store.AddRuleSet(fieldStudy, loadFieldStudy(t))
	narrator := services.NewMockNarrator()
	publisher := &mockPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:       NewService(store, narrator, publisher, logger),
		store:     store,
		narrator:  narrator,
		publisher: publisher,
	}
}

func (f *fixture) create(t *testing.T) uuid.UUID {
	t.Helper()
	view, err := f.svc.Create(context.Background(), fieldStudy)
	require.NoError(t, err)
	return view.State.ID
}

func logKinds(entries []state.LogEntry) []state.LogKind {
	out := make([]state.LogKind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.Create(context.Background(), fieldStudy)
	require.NoError(t, err)

	assert.Equal(t, fieldStudy, view.State.RuleSet)
	assert.Equal(t, "investigate_area", view.Situation.ID)
	assert.Equal(t, "Investigate the outflow", view.Situation.Label)
	assert.Equal(t, []string{"observe", "sample", "talk"}, view.AvailableActions)
	assert.False(t, view.Situation.Ending)

	saved, err := f.store.LoadGameState(context.Background(), view.State.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 0, saved.Turn)
}

func TestCreateRejectsBadRuleSets(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "missing.json")
	assert.ErrorIs(t, err, storage.ErrRuleSetNotFound)

	broken := loadFieldStudy(t)
	broken.Initial.Situation = "nowhere"
	f.store.AddRuleSet("broken.json", broken)

	_, err = f.svc.Create(context.Background(), "broken.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleSet)

	var rsErr *RuleSetError
	require.True(t, errors.As(err, &rsErr))
	assert.Equal(t, "broken.json", rsErr.File)
	assert.NotEmpty(t, rsErr.Issues)
}

func TestCreateRejectsTrackWithoutMax(t *testing.T) {
	f := newFixture(t)

	_, file, _, _ := runtime.Caller(0)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(file), "..", "..", "data", "rulesets", fieldStudy))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	delete(doc["tracks"].(map[string]any)["trust"].(map[string]any), "max")
	data, err = json.Marshal(doc)
	require.NoError(t, err)

	r, err := rules.Parse(data, rules.FormatJSON)
	require.NoError(t, err)
	f.store.AddRuleSet("no_max.json", r)

	_, err = f.svc.Create(context.Background(), "no_max.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleSet)

	var rsErr *RuleSetError
	require.True(t, errors.As(err, &rsErr))
	var paths []string
	for _, i := range rsErr.Issues {
		paths = append(paths, i.Path)
	}
	assert.Contains(t, paths, "tracks.trust.max")
}

func TestActAppliesRuleAndNarrates(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	out, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.NoError(t, err)

	assert.Equal(t, 1, out.State.Turn)
	clues, _ := out.State.Counter("clues")
	assert.Equal(t, 1.0, clues.Float())
	require.NotNil(t, out.Rule)
	assert.Equal(t, "observe_outflow", out.Rule.ID)
	assert.Equal(t, "The river carries on.", out.Narration)
	assert.Equal(t,
		[]state.LogKind{state.LogAction, state.LogProcedural, state.LogNarration},
		logKinds(out.State.Log))
	assert.Equal(t, "Observe", out.State.Log[0].Text)
	assert.Equal(t, "You note a fresh clue near the outflow.", out.State.Log[1].Text)

	assert.Equal(t, 1, f.narrator.Calls())
	assert.False(t, f.store.Locked(id), "lock should be released")

	saved, err := f.store.LoadGameState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Turn)
	assert.Len(t, saved.Log, 3)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "action", f.publisher.events[0].kind)
	assert.Equal(t, []string{"You note a fresh clue near the outflow."}, f.publisher.events[0].logs)
}

func TestActTransitionPublishesSituationChange(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Act(ctx, id, engine.ActionRequest{ActionID: "sample", Success: true})
	require.NoError(t, err)
	out, err := f.svc.Act(ctx, id, engine.ActionRequest{ActionID: "sample", Success: true})
	require.NoError(t, err)

	require.NotNil(t, out.Transition)
	assert.Equal(t, "investigate_area", out.Transition.From)
	assert.Equal(t, "technical_ops", out.Transition.To)
	assert.False(t, out.Transition.Auto)
	assert.Equal(t, "technical_ops", out.Situation.ID)
	assert.Empty(t, out.State.NextSituation)

	// Entries produced before the transition keep the old situation.
	last := out.State.Log[len(out.State.Log)-2]
	assert.Equal(t, state.LogProcedural, last.Kind)
	assert.Equal(t, "investigate_area", last.Situation)

	kinds := make([]string, 0, len(f.publisher.events))
	for _, e := range f.publisher.events {
		kinds = append(kinds, e.kind)
	}
	assert.Equal(t, []string{"action", "action", "situation"}, kinds)
}

func TestActTargetedAction(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	out, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "talk", Target: "the fisherman", Success: true})
	require.NoError(t, err)

	assert.Equal(t, "community", out.State.Route)
	assert.Equal(t, "Talk the fisherman", out.State.Log[0].Text)

	// The secret cue reaches the narrator but not the visible log.
	require.Equal(t, 1, f.narrator.Calls())
	msgs := f.narrator.NarrateCalls[0]
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Content, "tanker")
	for _, e := range out.State.Log {
		assert.NotContains(t, e.Text, "tanker")
	}
}

func TestActNoMatchStillCountsTurn(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	out, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "talk", Target: "a heron", Success: true})
	require.NoError(t, err)

	assert.Nil(t, out.Rule)
	assert.Empty(t, out.Logs)
	assert.Equal(t, 1, out.State.Turn)
	assert.Equal(t, "investigate_area", out.State.Situation)
}

func TestActErrors(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Act(ctx, id, engine.ActionRequest{})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = f.svc.Act(ctx, id, engine.ActionRequest{ActionID: "dance"})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.False(t, f.store.Locked(id))

	_, err = f.svc.Act(ctx, uuid.New(), engine.ActionRequest{ActionID: "observe"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ok, err := f.store.AcquireLock(ctx, id, "someone-else")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.Act(ctx, id, engine.ActionRequest{ActionID: "observe"})
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.True(t, f.store.Locked(id), "foreign lock must not be released")
}

func TestActNarrationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.narrator.NarrateFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "", errors.New("upstream unavailable")
	}
	id := f.create(t)

	out, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.NoError(t, err)
	assert.Empty(t, out.Narration)
	assert.Equal(t, []state.LogKind{state.LogAction, state.LogProcedural}, logKinds(out.State.Log))
}

func TestActFiltersNarrationForRating(t *testing.T) {
	f := newFixture(t)
	f.narrator.NarrateFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "Damn, the foam is back.", nil
	}
	id := f.create(t)

	out, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.NoError(t, err)
	assert.Equal(t, "Dang, the foam is back.", out.Narration)

	unrated := loadFieldStudy(t)
	unrated.Rating = ""
	f.store.AddRuleSet(fieldStudy, unrated)

	out, err = f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.NoError(t, err)
	assert.Equal(t, "Damn, the foam is back.", out.Narration)
}

func TestActPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")
	id := f.create(t)

	_, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "observe", Success: true})
	assert.NoError(t, err)
}

func TestActSaveFailure(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	f.store.SetSaveError(errors.New("disk full"))

	_, err := f.svc.Act(context.Background(), id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.Error(t, err)
	assert.False(t, f.store.Locked(id))
}

func TestActScriptedOverrides(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	out, err := f.svc.Act(context.Background(), id, engine.ActionRequest{
		Overrides: [][]rules.Effect{
			{rules.TrackEffect("eco.pollution,6"), rules.LogEffect("A storm churns the silt.")},
		},
	})
	require.NoError(t, err)

	// Pollution reaches 8, which auto-enters river_crisis.
	require.NotNil(t, out.Transition)
	assert.True(t, out.Transition.Auto)
	assert.Equal(t, "river_crisis", out.Situation.ID)
	assert.True(t, out.Situation.Ending)
	assert.Empty(t, out.Narration)
	assert.Equal(t, 0, f.narrator.Calls())
	// Scripted effects never emit log lines.
	assert.Empty(t, out.Logs)
	assert.Empty(t, out.State.Log)
}

func TestGetAndDelete(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	ctx := context.Background()

	view, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, view.State.ID)

	require.NoError(t, f.svc.Delete(ctx, id))
	_, err = f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, id), ErrSessionNotFound)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "deleted", f.publisher.events[0].kind)
}

func TestTranscript(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Act(ctx, id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Transcript(ctx, id, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	err = f.svc.Transcript(ctx, uuid.New(), &buf)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Act(ctx, id, engine.ActionRequest{ActionID: "observe", Success: true})
	require.NoError(t, err)
	view, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	data, err := view.State.Marshal()
	require.NoError(t, err)

	imported, err := f.svc.Import(ctx, data)
	require.NoError(t, err)
	assert.NotEqual(t, id, imported.State.ID)
	assert.Equal(t, 1, imported.State.Turn)
	clues, _ := imported.State.Counter("clues")
	assert.Equal(t, 1.0, clues.Float())

	stale := view.State.Clone()
	stale.Situation = "demolished_lab"
	data, err = stale.Marshal()
	require.NoError(t, err)
	_, err = f.svc.Import(ctx, data)
	assert.ErrorIs(t, err, ErrIncompatible)

	_, err = f.svc.Import(ctx, []byte("not json"))
	assert.ErrorIs(t, err, ErrIncompatible)
}
