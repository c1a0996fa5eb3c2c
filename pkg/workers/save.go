package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories"
	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
)

// DefaultSaveTimeout bounds a single repository write.
const DefaultSaveTimeout = 5 * time.Second

type SaveMatchResultRequest struct {
	Result *models.MatchResult
}

type SaveMatchResultWorker struct {
	repository  repositories.Repository
	requestChan <-chan SaveMatchResultRequest
	saveTimeout time.Duration
	saved       atomic.Int64
	failed      atomic.Int64
	done        chan struct{}
}

type NewSaveMatchResultWorkerOptions struct {
	Repository  repositories.Repository
	RequestChan <-chan SaveMatchResultRequest
	SaveTimeout time.Duration
}

// NewSaveMatchResultWorker creates a new SaveMatchResultWorker.
// The worker writes match results handed off by the game loop so that the
// tick never waits on the database.
func NewSaveMatchResultWorker(opts NewSaveMatchResultWorkerOptions) *SaveMatchResultWorker {
	saveTimeout := opts.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = DefaultSaveTimeout
	}
	return &SaveMatchResultWorker{
		repository:  opts.Repository,
		requestChan: opts.RequestChan,
		saveTimeout: saveTimeout,
		done:        make(chan struct{}),
	}
}

// Start processes requests until ctx is done or the request channel is
// closed. Requests already buffered when ctx is done are still written.
func (w *SaveMatchResultWorker) Start(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case req, ok := <-w.requestChan:
			if !ok {
				return
			}
			w.saveMatchResult(ctx, req)
		}
	}
}

// Done is closed once Start has returned.
func (w *SaveMatchResultWorker) Done() <-chan struct{} {
	return w.done
}

func (w *SaveMatchResultWorker) drain() {
	for {
		select {
		case req, ok := <-w.requestChan:
			if !ok {
				return
			}
			w.saveMatchResult(context.Background(), req)
		default:
			return
		}
	}
}

func (w *SaveMatchResultWorker) saveMatchResult(ctx context.Context, req SaveMatchResultRequest) {
	if req.Result == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.saveTimeout)
	defer cancel()
	if err := w.repository.SaveMatchResult(ctx, req.Result); err != nil {
		w.failed.Add(1)
		log.Error("Failed to save match result for session %s: %v", req.Result.SessionID, err)
		return
	}
	w.saved.Add(1)
	log.Info("Saved match result for session %s", req.Result.SessionID)
}

// Saved returns the number of results written.
func (w *SaveMatchResultWorker) Saved() int64 {
	return w.saved.Load()
}

// Failed returns the number of results that could not be written.
func (w *SaveMatchResultWorker) Failed() int64 {
	return w.failed.Load()
}

// TrySubmit hands a request to the worker without blocking and reports
// whether it was accepted.
func TrySubmit(requestChan chan<- SaveMatchResultRequest, req SaveMatchResultRequest) bool {
	if requestChan == nil {
		return false
	}
	select {
	case requestChan <- req:
		return true
	default:
		return false
	}
}
