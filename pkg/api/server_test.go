package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories"
	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
	"github.com/cbodonnell/tickrelay/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct{}

func (fakeSession) ID() string { return "abc" }

func (fakeSession) Status() server.Status {
	return server.Status{SessionID: "abc", MapName: "arena", TickRate: 20, Ticks: 7, Connections: 2, Open: true}
}

func (fakeSession) State() types.GameState {
	state := types.NewGameState("abc", "arena", "deathmatch")
	state.Tick = 7
	return state
}

type fakeRepository struct {
	results   []*models.MatchResult
	lastLimit int
	err       error
}

func (r *fakeRepository) Close(ctx context.Context) error { return nil }

func (r *fakeRepository) SaveMatchResult(ctx context.Context, result *models.MatchResult) error {
	return nil
}

func (r *fakeRepository) LoadMatchResult(ctx context.Context, sessionID string) (*models.MatchResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, result := range r.results {
		if result.SessionID == sessionID {
			return result, nil
		}
	}
	return nil, &repositories.ErrNotFound{}
}

func (r *fakeRepository) ListMatchResults(ctx context.Context, limit int) ([]*models.MatchResult, error) {
	r.lastLimit = limit
	if r.err != nil {
		return nil, r.err
	}
	if limit < len(r.results) {
		return r.results[:limit], nil
	}
	return r.results, nil
}

func TestRouter(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	repository := &fakeRepository{results: []*models.MatchResult{
		{SessionID: "abc", Mode: "deathmatch", MapName: "arena", Winner: 1, Players: []models.PlayerResult{}},
		{SessionID: "def", Mode: "onelife", MapName: "crossroads", Players: []models.PlayerResult{}},
	}}
	withSession := NewRouter(NewAPIServerOptions{Session: fakeSession{}, Repository: repository})
	empty := NewRouter(NewAPIServerOptions{})

	tests := []struct {
		name       string
		router     http.Handler
		method     string
		path       string
		wantStatus int
		wantBody   func(t *testing.T, body []byte)
	}{
		{
			name:       "status",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/status",
			wantStatus: http.StatusOK,
			wantBody: func(t *testing.T, body []byte) {
				var status server.Status
				require.NoError(t, json.Unmarshal(body, &status))
				assert.Equal(t, "abc", status.SessionID)
				assert.Equal(t, uint64(7), status.Ticks)
				assert.Equal(t, 2, status.Connections)
			},
		},
		{
			name:       "status without session",
			router:     empty,
			method:     http.MethodGet,
			path:       "/status",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "session state",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/sessions/abc/state",
			wantStatus: http.StatusOK,
			wantBody: func(t *testing.T, body []byte) {
				var state types.GameState
				require.NoError(t, json.Unmarshal(body, &state))
				assert.Equal(t, uint64(7), state.Tick)
				assert.Equal(t, "arena", state.MapName)
			},
		},
		{
			name:       "other session state",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/sessions/xyz/state",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "list matches",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/matches?limit=1",
			wantStatus: http.StatusOK,
			wantBody: func(t *testing.T, body []byte) {
				var results []*models.MatchResult
				require.NoError(t, json.Unmarshal(body, &results))
				require.Len(t, results, 1)
				assert.Equal(t, "abc", results[0].SessionID)
			},
		},
		{
			name:       "bad limit",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/matches?limit=zero",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "matches disabled",
			router:     empty,
			method:     http.MethodGet,
			path:       "/matches",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "get match",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/matches/def",
			wantStatus: http.StatusOK,
			wantBody: func(t *testing.T, body []byte) {
				var result models.MatchResult
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, "onelife", result.Mode)
			},
		},
		{
			name:       "missing match",
			router:     withSession,
			method:     http.MethodGet,
			path:       "/matches/zzz",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "preflight",
			router:     withSession,
			method:     http.MethodOptions,
			path:       "/status",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "wrong method",
			router:     withSession,
			method:     http.MethodPost,
			path:       "/status",
			wantStatus: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			tt.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			}
			if tt.wantBody != nil {
				tt.wantBody(t, rec.Body.Bytes())
			}
		})
	}
}

func TestRouter_LimitIsCapped(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 20},
		{query: "?limit=5", want: 5},
		{query: "?limit=1000", want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			repository := &fakeRepository{}
			router := NewRouter(NewAPIServerOptions{Repository: repository})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches"+tt.query, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, repository.lastLimit)
		})
	}
}

func TestRouter_RepositoryError(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	router := NewRouter(NewAPIServerOptions{Repository: &fakeRepository{err: errors.New("boom")}})
	for _, path := range []string{"/matches", "/matches/abc"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
	}
}

func TestNewAPIServer(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	s := NewAPIServer(NewAPIServerOptions{Session: fakeSession{}})
	ts := httptest.NewUnstartedServer(s.server.Handler)
	ts.Start()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ":18080", s.server.Addr)
	assert.NoError(t, s.Stop(context.Background()))
}
