package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	lock  sync.Mutex
	saved []string
	fail  map[string]bool
}

func (r *fakeRepository) Close(ctx context.Context) error { return nil }

func (r *fakeRepository) SaveMatchResult(ctx context.Context, result *models.MatchResult) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.fail[result.SessionID] {
		return errors.New("disk full")
	}
	r.saved = append(r.saved, result.SessionID)
	return nil
}

func (r *fakeRepository) LoadMatchResult(ctx context.Context, sessionID string) (*models.MatchResult, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepository) ListMatchResults(ctx context.Context, limit int) ([]*models.MatchResult, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepository) sessions() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.saved...)
}

func request(sessionID string) SaveMatchResultRequest {
	return SaveMatchResultRequest{Result: &models.MatchResult{SessionID: sessionID}}
}

func waitDone(t *testing.T, w *SaveMatchResultWorker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSaveMatchResultWorker_SavesUntilClosed(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	repository := &fakeRepository{fail: map[string]bool{"b": true}}
	requests := make(chan SaveMatchResultRequest, 4)
	w := NewSaveMatchResultWorker(NewSaveMatchResultWorkerOptions{
		Repository:  repository,
		RequestChan: requests,
	})

	requests <- request("a")
	requests <- request("b")
	requests <- SaveMatchResultRequest{}
	requests <- request("c")
	close(requests)
	go w.Start(context.Background())
	waitDone(t, w)

	assert.Equal(t, []string{"a", "c"}, repository.sessions())
	assert.Equal(t, int64(2), w.Saved())
	assert.Equal(t, int64(1), w.Failed())
}

func TestSaveMatchResultWorker_DrainsOnCancel(t *testing.T) {
	log.SetDefaultLogger(log.NewNop())
	repository := &fakeRepository{}
	requests := make(chan SaveMatchResultRequest, 3)
	w := NewSaveMatchResultWorker(NewSaveMatchResultWorkerOptions{
		Repository:  repository,
		RequestChan: requests,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	requests <- request("a")
	requests <- request("b")
	go w.Start(ctx)
	waitDone(t, w)

	assert.ElementsMatch(t, []string{"a", "b"}, repository.sessions())
	assert.Equal(t, int64(2), w.Saved())
}

func TestTrySubmit(t *testing.T) {
	full := make(chan SaveMatchResultRequest, 1)
	full <- request("queued")

	tests := []struct {
		name string
		ch   chan SaveMatchResultRequest
		want bool
	}{
		{name: "nil channel", ch: nil, want: false},
		{name: "space available", ch: make(chan SaveMatchResultRequest, 1), want: true},
		{name: "full", ch: full, want: false},
		{name: "unbuffered without reader", ch: make(chan SaveMatchResultRequest), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrySubmit(tt.ch, request("x")))
		})
	}
}

func TestNewSaveMatchResultWorker_DefaultTimeout(t *testing.T) {
	w := NewSaveMatchResultWorker(NewSaveMatchResultWorkerOptions{})
	require.NotNil(t, w)
	assert.Equal(t, DefaultSaveTimeout, w.saveTimeout)
}
