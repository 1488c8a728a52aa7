package runner

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/situation-engine/internal/handlers"
	"github.com/jwebster45206/situation-engine/internal/services"
	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

func repoPath(t *testing.T, parts ...string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(append([]string{filepath.Dir(file), "..", ".."}, parts...)...)
}

// newAPI serves the session routes over an in-memory store.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := storage.NewMockStorage()
	r, err := rules.Load(repoPath(t, "data", "rulesets", "field_study.json"))
	require.NoError(t, err)
	store.AddRuleSet("field_study.json", r)

	svc := session.NewService(store, services.NewMockNarrator(), nil, logger)
	sessions := handlers.NewSessionHandler(svc, logger)
	mux := http.NewServeMux()
	mux.Handle("/v1/sessions", sessions)
	mux.Handle("/v1/sessions/", sessions)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSuite_Cases(t *testing.T) {
	srv := newAPI(t)
	r := NewRunner(srv.URL)
	r.Logger = t.Logf

	for _, name := range []string{"field_study_official.json", "field_study_crisis.json"} {
		t.Run(name, func(t *testing.T) {
			suite, err := LoadTestSuite(repoPath(t, "integration", "cases", name))
			require.NoError(t, err)

			result, err := r.RunSuite(context.Background(), suite)
			require.NoError(t, err)
			require.Len(t, result.Results, len(suite.Steps))
			for _, step := range result.Results {
				assert.True(t, step.Success, "%s: %v", step.StepName, step.Error)
			}

			view, err := GetSession(context.Background(), r.Client, r.BaseURL, result.Session)
			require.NoError(t, err)
			assert.Equal(t, result.Session, view.State.ID)
		})
	}
}

func TestRunSuite_ReportsFailedExpectations(t *testing.T) {
	srv := newAPI(t)
	wrong := "technical_ops"
	suite := TestSuite{
		Name:    "wrong situation",
		RuleSet: "field_study.json",
		Steps: []TestStep{
			{Name: "observe", Action: "observe", Expectations: Expectations{Situation: &wrong}},
			{Name: "observe again", Action: "observe"},
		},
	}

	t.Run("continue", func(t *testing.T) {
		r := NewRunner(srv.URL)
		result, err := r.RunSuite(context.Background(), suite)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected situation technical_ops")
		require.Len(t, result.Results, 2)
		assert.False(t, result.Results[0].Success)
		assert.True(t, result.Results[1].Success)
	})

	t.Run("exit", func(t *testing.T) {
		r := NewRunner(srv.URL)
		r.ErrorHandlingMode = ErrorHandlingExit
		result, err := r.RunSuite(context.Background(), suite)
		require.Error(t, err)
		assert.Len(t, result.Results, 1)
	})
}

func TestRunSuite_UnexpectedStatus(t *testing.T) {
	srv := newAPI(t)
	r := NewRunner(srv.URL)

	result, err := r.RunSuite(context.Background(), TestSuite{
		Name:    "bad action",
		RuleSet: "field_study.json",
		Steps:   []TestStep{{Name: "dance", Action: "dance"}},
	})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, result.Results[0].Error, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
}

func TestRunSuite_UnknownRuleSet(t *testing.T) {
	srv := newAPI(t)
	r := NewRunner(srv.URL)

	_, err := r.RunSuite(context.Background(), TestSuite{Name: "missing", RuleSet: "missing.json"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestLoadTestSuiteWithExpansion(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("a.json", `{"name":"a","ruleset":"field_study.json","steps":[{"action":"observe"}]}`)
	write("b.json", `{"name":"b","ruleset":"field_study.json"}`)
	write("inner.json", `{"name":"inner","cases":["b.json"]}`)
	write("all.json", `{"name":"all","cases":["a.json","inner.json"]}`)

	jobs, err := LoadTestSuiteWithExpansion(filepath.Join(dir, "all.json"), dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)
	assert.Equal(t, filepath.Join(dir, "b.json"), jobs[1].CaseFile)

	write("broken.json", `{"name":"broken","cases":["nope.json"]}`)
	_, err = LoadTestSuiteWithExpansion(filepath.Join(dir, "broken.json"), dir)
	assert.ErrorContains(t, err, "nope.json")
}
