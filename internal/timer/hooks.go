package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"opsadmin/internal/model"
	rtsup "opsadmin/internal/runtime/supervisor"
	logx "opsadmin/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

type eventTask struct {
	job    *Job
	status model.EventStatus
}

// eventWriter persists lifecycle events off the trigger path. A bounded queue is
// drained by a small worker pool; when it is full the event is dropped.
type eventWriter struct {
	log logx.Logger
	sup *rtsup.Supervisor

	mu     sync.RWMutex
	closed bool
	q      chan eventTask

	written        atomic.Uint64
	dropped        atomic.Uint64
	lastDropWarnAt atomic.Int64
	closeOnce      sync.Once
	workerCount    int
	queueCap       int
}

func newEventWriter(size, workers int, log logx.Logger) *eventWriter {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 2
	}
	w := &eventWriter{
		log:         log,
		sup:         rtsup.New(context.Background(), rtsup.WithLogger(log)),
		q:           make(chan eventTask, size),
		workerCount: workers,
		queueCap:    size,
	}
	for i := 0; i < workers; i++ {
		w.sup.Go0("timer.events", w.worker)
	}
	return w
}

func (w *eventWriter) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.q:
			if !ok {
				return
			}
			t.job.writeEvent(ctx, t.status)
			w.written.Add(1)
		}
	}
}

// enqueue never blocks the caller.
func (w *eventWriter) enqueue(j *Job, status model.EventStatus) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.onDrop(j, status, "closed")
		return false
	}
	select {
	case w.q <- eventTask{job: j, status: status}:
		return true
	default:
		w.onDrop(j, status, "queue full")
		return false
	}
}

func (w *eventWriter) onDrop(j *Job, status model.EventStatus, reason string) {
	n := w.dropped.Add(1)
	now := time.Now().UnixNano()
	last := w.lastDropWarnAt.Load()
	if now-last < int64(warnThrottleEvery) || !w.lastDropWarnAt.CompareAndSwap(last, now) {
		return
	}
	w.log.Warn("event dropped",
		logx.String("reason", reason),
		logx.String("job", j.ID()),
		logx.String("event", status.String()),
		logx.Uint64("dropped_total", n),
	)
}

// close stops intake and lets the workers drain what is queued. If ctx expires
// first the workers are cancelled and the remainder is lost.
func (w *eventWriter) close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.q)
		w.mu.Unlock()
	})
	if err := w.sup.Wait(ctx); err != nil {
		w.sup.Cancel()
		return err
	}
	w.sup.Cancel()
	return nil
}

func (w *eventWriter) pending() int { return len(w.q) }
