// Package persist provides the write-behind gateway between session
// state and the durable store.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/kido-tutor/internal/domain"
	"github.com/ashureev/kido-tutor/internal/store"
)

// Result reports the outcome of one background write.
type Result struct {
	Op     string
	Key    string
	Err    error
	Queued time.Time
}

// writeOp is one queued unit of work.
type writeOp struct {
	op     string
	key    string
	queued time.Time
	run    func(ctx context.Context) error
}

// Gateway queues durable writes behind a single supervised worker.
// Saves never block the caller's turn; outcomes are reported on
// Results so the process can drain and log them centrally. Loads are
// synchronous.
type Gateway struct {
	repo    store.Repository
	appName string
	queue   chan writeOp
	results chan Result
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  sync.Once
	logger  *slog.Logger
}

// NewGateway creates a gateway with a bounded queue and starts its
// worker.
func NewGateway(repo store.Repository, appName string, queueSize int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		repo:    repo,
		appName: appName,
		queue:   make(chan writeOp, queueSize),
		results: make(chan Result, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}

	g.wg.Add(1)
	go g.worker()

	return g
}

// Results is the supervision channel. The owner drains it for the
// lifetime of the gateway; a full channel drops the oldest result
// rather than blocking the worker.
func (g *Gateway) Results() <-chan Result {
	return g.results
}

// SessionDocID returns the session snapshot key for a user.
func (g *Gateway) SessionDocID(userID string) string {
	return g.appName + "__" + userID
}

// SaveLessonState enqueues a lesson-document write for a user.
func (g *Gateway) SaveLessonState(userID string, doc *store.LessonDocument) {
	g.enqueue("save_lesson_state", userID, func(ctx context.Context) error {
		return g.repo.SaveLessonState(ctx, userID, doc)
	})
}

// SaveSessionState enqueues a full-session snapshot write.
func (g *Gateway) SaveSessionState(sessionID string, state domain.SessionState) {
	docID := g.SessionDocID(state.UserID)
	doc := &store.SessionDocument{SessionID: sessionID, State: state}
	g.enqueue("save_session_state", docID, func(ctx context.Context) error {
		return g.repo.SaveSessionState(ctx, docID, doc)
	})
}

// SaveCompletedLesson enqueues a learning-history archive write.
func (g *Gateway) SaveCompletedLesson(lesson *domain.CompletedLesson) {
	g.enqueue("save_completed_lesson", lesson.DocID(), func(ctx context.Context) error {
		return g.repo.SaveCompletedLesson(ctx, lesson)
	})
}

// LoadLessonState reads the persisted lesson document synchronously.
func (g *Gateway) LoadLessonState(ctx context.Context, userID string) (*store.LessonDocument, error) {
	return g.repo.GetLessonState(ctx, userID)
}

// LoadSessionState reads the persisted session snapshot synchronously.
func (g *Gateway) LoadSessionState(ctx context.Context, userID string) (*store.SessionDocument, error) {
	return g.repo.GetSessionState(ctx, g.SessionDocID(userID))
}

// ListCompletedLessons reads the learning history synchronously.
func (g *Gateway) ListCompletedLessons(ctx context.Context, userID string) ([]*domain.CompletedLesson, error) {
	return g.repo.ListCompletedLessons(ctx, userID)
}

// enqueue adds a write without blocking. When the queue is full the
// oldest pending write is dropped to make room; last-write-wins makes
// that safe for per-key documents.
func (g *Gateway) enqueue(op, key string, run func(ctx context.Context) error) {
	w := writeOp{op: op, key: key, queued: time.Now(), run: run}

	select {
	case g.queue <- w:
		return
	case <-g.ctx.Done():
		g.logger.Debug("gateway closed, dropping write", "op", op, "key", key)
		return
	default:
	}

	g.logger.Warn("persistence queue full, dropping oldest write",
		"op", op,
		"key", key,
		"queue_len", len(g.queue))

	select {
	case <-g.queue:
	default:
	}

	select {
	case g.queue <- w:
	case <-g.ctx.Done():
	default:
		g.logger.Warn("failed to queue write after drop", "op", op, "key", key)
	}
}

// worker executes queued writes one at a time and reports outcomes.
func (g *Gateway) worker() {
	defer g.wg.Done()

	for {
		select {
		case <-g.ctx.Done():
			// Flush whatever is still queued before exiting.
			for {
				select {
				case w := <-g.queue:
					g.execute(w)
				default:
					return
				}
			}

		case w := <-g.queue:
			g.execute(w)
		}
	}
}

func (g *Gateway) execute(w writeOp) {
	// Writes get their own deadline so a wedged store cannot stall the
	// queue indefinitely.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := w.run(ctx)
	res := Result{Op: w.op, Key: w.key, Err: err, Queued: w.queued}

	select {
	case g.results <- res:
	default:
		// Supervisor is behind; drop the oldest result.
		select {
		case <-g.results:
		default:
		}
		select {
		case g.results <- res:
		default:
		}
	}
}

// DrainResults logs gateway outcomes until the channel closes. Run it
// once, in its own goroutine, from process startup.
func DrainResults(results <-chan Result, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for res := range results {
		if res.Err != nil {
			logger.Error("background persistence failed",
				"op", res.Op,
				"key", res.Key,
				"error", res.Err)
			continue
		}
		logger.Debug("background persistence completed",
			"op", res.Op,
			"key", res.Key,
			"queued_for", time.Since(res.Queued))
	}
}

// Close stops accepting writes, flushes the queue, and waits for the
// worker to exit. Safe to call more than once.
func (g *Gateway) Close() error {
	g.closed.Do(func() {
		g.logger.Info("closing persistence gateway", "queue_remaining", len(g.queue))

		g.cancel()

		done := make(chan struct{})
		go func() {
			g.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			g.logger.Warn("persistence worker shutdown timeout")
		}

		close(g.results)
	})
	return nil
}
