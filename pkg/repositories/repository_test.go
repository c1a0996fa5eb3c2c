package repositories

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()
	repository, err := NewRepository(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(ctx) })
	return repository
}

func matchResult(sessionID string, endedAt int64) *models.MatchResult {
	return &models.MatchResult{
		SessionID:  sessionID,
		Mode:       "deathmatch",
		MapName:    "arena",
		Winner:     1,
		WinnerName: "alice",
		EndedAt:    endedAt,
		Players: []models.PlayerResult{
			{PlayerID: 2, Name: "bob", Score: 300, Kills: 3, Deaths: 10},
			{PlayerID: 1, Name: "alice", Score: 1000, Kills: 10, Deaths: 3, Host: true},
		},
	}
}

func TestSQLiteRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repository := newTestRepository(t)

	require.NoError(t, repository.SaveMatchResult(ctx, matchResult("a", 100)))
	got, err := repository.LoadMatchResult(ctx, "a")
	require.NoError(t, err)

	want := matchResult("a", 100)
	// players come back ranked by score
	want.Players[0], want.Players[1] = want.Players[1], want.Players[0]
	assert.Equal(t, want, got)
}

func TestSQLiteRepository_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	repository := newTestRepository(t)
	require.NoError(t, repository.SaveMatchResult(ctx, matchResult("a", 100)))

	replacement := &models.MatchResult{
		SessionID: "a",
		Mode:      "onelife",
		MapName:   "crossroads",
		EndedAt:   200,
		Players:   []models.PlayerResult{{PlayerID: 9, Name: "carol"}},
	}
	require.NoError(t, repository.SaveMatchResult(ctx, replacement))

	got, err := repository.LoadMatchResult(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	repository := newTestRepository(t)
	_, err := repository.LoadMatchResult(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLiteRepository_List(t *testing.T) {
	ctx := context.Background()
	repository := newTestRepository(t)
	for _, r := range []*models.MatchResult{
		matchResult("old", 100),
		matchResult("new", 300),
		matchResult("mid", 200),
	} {
		require.NoError(t, repository.SaveMatchResult(ctx, r))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 10, want: []string{"new", "mid", "old"}},
		{name: "limited", limit: 2, want: []string{"new", "mid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := repository.ListMatchResults(ctx, tt.limit)
			require.NoError(t, err)
			ids := make([]string, 0, len(results))
			for _, r := range results {
				ids = append(ids, r.SessionID)
				assert.Len(t, r.Players, 2)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteRepository_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "matches.db")

	repository, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repository.SaveMatchResult(ctx, matchResult("a", 100)))
	require.NoError(t, repository.Close(ctx))

	// migrations are idempotent
	repository, err = NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	defer repository.Close(ctx)
	got, err := repository.LoadMatchResult(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.WinnerName)
}

func TestNewRepository_UnknownScheme(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "mysql", url: "mysql://localhost/db"},
		{name: "no scheme", url: "tickrelay.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRepository(context.Background(), tt.url)
			assert.Error(t, err)
		})
	}
}

func TestMigrations(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		scripts, err := migrations(dialect)
		require.NoError(t, err)
		assert.NotEmpty(t, scripts, dialect)
	}
	_, err := migrations("oracle")
	assert.Error(t, err)
}
