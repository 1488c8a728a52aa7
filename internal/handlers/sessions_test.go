package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/situation-engine/internal/services"
	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

func newSessionHandler(t *testing.T) (*SessionHandler, *storage.MockStorage) {
	t.Helper()
	store := newRuleSetStorage(t)
	svc := session.NewService(store, services.NewMockNarrator(), nil, testLogger())
	return NewSessionHandler(svc, testLogger()), store
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createSession(t *testing.T, h http.Handler) session.View {
	t.Helper()
	rr := serve(h, http.MethodPost, "/v1/sessions", `{"ruleset":"field_study.json"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view session.View
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	return view
}

func TestSessionHandler_Create(t *testing.T) {
	h, _ := newSessionHandler(t)

	view := createSession(t, h)
	assert.NotEqual(t, uuid.Nil, view.State.ID)
	assert.Equal(t, "investigate_area", view.Situation.ID)
	assert.Equal(t, []string{"observe", "sample", "talk"}, view.AvailableActions)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{"ruleset":`, http.StatusBadRequest},
		{"missing ruleset", `{}`, http.StatusBadRequest},
		{"unknown ruleset", `{"ruleset":"atlantis.json"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, http.MethodPost, "/v1/sessions", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestSessionHandler_CreateInvalidRuleSet(t *testing.T) {
	h, store := newSessionHandler(t)
	broken := loadRuleFile(t, "field_study.json")
	broken.Initial.Situation = "nowhere"
	store.AddRuleSet("broken.json", broken)

	rr := serve(h, http.MethodPost, "/v1/sessions", `{"ruleset":"broken.json"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotEmpty(t, resp.Issues)
	assert.Equal(t, "initial.situation", resp.Issues[0].Path)
}

func TestSessionHandler_Action(t *testing.T) {
	h, _ := newSessionHandler(t)
	view := createSession(t, h)
	url := "/v1/sessions/" + view.State.ID.String() + "/actions"

	rr := serve(h, http.MethodPost, url, `{"action_id":"talk","target":"Ranger","success":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out session.Outcome
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.Equal(t, "official", out.State.Route)
	require.NotNil(t, out.Rule)
	assert.Equal(t, "talk_ranger", out.Rule.ID)
	require.Len(t, out.Logs, 1)
	assert.Equal(t, "The ranger agrees to share patrol logs.", out.Logs[0].Message)
	assert.Equal(t, 4, out.State.Tracks["trust"].Value)
	assert.NotEmpty(t, out.Narration)

	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"unknown action", url, `{"action_id":"fly"}`, http.StatusBadRequest},
		{"missing action", url, `{}`, http.StatusBadRequest},
		{"bad json", url, `{`, http.StatusBadRequest},
		{"unknown session", "/v1/sessions/" + uuid.NewString() + "/actions", `{"action_id":"observe"}`, http.StatusNotFound},
		{"bad id", "/v1/sessions/not-a-uuid/actions", `{"action_id":"observe"}`, http.StatusBadRequest},
		{"unknown sub-resource", "/v1/sessions/" + view.State.ID.String() + "/dance", `{}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, http.MethodPost, tt.url, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestSessionHandler_ActionBusy(t *testing.T) {
	h, store := newSessionHandler(t)
	view := createSession(t, h)

	ok, err := store.AcquireLock(t.Context(), view.State.ID, "worker-2")
	require.NoError(t, err)
	require.True(t, ok)

	rr := serve(h, http.MethodPost, "/v1/sessions/"+view.State.ID.String()+"/actions", `{"action_id":"observe"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSessionHandler_GetDeleteImport(t *testing.T) {
	h, _ := newSessionHandler(t)
	view := createSession(t, h)
	url := "/v1/sessions/" + view.State.ID.String()

	rr := serve(h, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got session.View
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, view.State.ID, got.State.ID)

	save, err := json.Marshal(got.State)
	require.NoError(t, err)
	rr = serve(h, http.MethodPost, "/v1/sessions/import", string(save))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var imported session.View
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&imported))
	assert.NotEqual(t, view.State.ID, imported.State.ID)

	rr = serve(h, http.MethodPost, "/v1/sessions/import", `{"ruleset":"field_study.json","situation":"moon"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(h, http.MethodDelete, url, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = serve(h, http.MethodGet, url, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(h, http.MethodPut, url, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	rr = serve(h, http.MethodGet, "/v1/sessions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSessionHandler_Transcript(t *testing.T) {
	h, _ := newSessionHandler(t)
	view := createSession(t, h)
	url := "/v1/sessions/" + view.State.ID.String()

	rr := serve(h, http.MethodPost, url+"/actions", `{"action_id":"observe","success":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(h, http.MethodGet, url+"/transcript", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "session-"+view.State.ID.String()+".pdf")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "%PDF-"))

	rr = serve(h, http.MethodPost, url+"/transcript", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = serve(h, http.MethodGet, "/v1/sessions/"+uuid.NewString()+"/transcript", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
