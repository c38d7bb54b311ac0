package timer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"opsadmin/internal/model"
	logx "opsadmin/pkg/logx"
)

// Config tunes the scheduler loop.
type Config struct {
	// Timezone for cron expressions. Empty means the process local zone.
	Timezone string
	// StartupSpread caps a random extra delay on the first trigger of interval
	// jobs. 0 keeps first trigger = one interval after start.
	StartupSpread time.Duration
	// ShutdownGrace bounds how long Shutdown waits for in-flight bodies. 0 does not wait.
	ShutdownGrace time.Duration
	EventQueue    int
	EventWorkers  int
}

type entry struct {
	job    *Job
	id     cron.EntryID
	spread time.Duration
}

// loop is the shared state behind every JobScheduler handle.
type loop struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	loc     *time.Location
	c       *cron.Cron
	entries map[uuid.UUID]*entry
	running bool
	stopped bool

	// ctx is handed to job bodies and cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	writer     *eventWriter
	onShutdown func(ctx context.Context)
}

// JobScheduler is a handle onto a single scheduling loop. Handles from Attach
// share the loop, its jobs and its shutdown state.
type JobScheduler struct {
	l *loop
}

// NewJobScheduler builds an idle loop. Jobs may be added before Start.
func NewJobScheduler(cfg Config, log logx.Logger) (*JobScheduler, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "timer"))

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &SchedulerError{Op: "init", Err: fmt.Errorf("timezone %q: %w", tz, err)}
		}
		loc = l
	}

	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{
		cfg: cfg,
		log: log,
		loc: loc,
		c: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		entries: map[uuid.UUID]*entry{},
		ctx:     ctx,
		cancel:  cancel,
		writer:  newEventWriter(cfg.EventQueue, cfg.EventWorkers, log),
	}
	return &JobScheduler{l: l}, nil
}

// Attach returns another handle onto the same loop.
func (s *JobScheduler) Attach() *JobScheduler { return &JobScheduler{l: s.l} }

// SetShutdownHandler installs fn to run once during Shutdown, after the loop stops.
func (s *JobScheduler) SetShutdownHandler(fn func(ctx context.Context)) {
	s.l.mu.Lock()
	s.l.onShutdown = fn
	s.l.mu.Unlock()
}

// AddJob schedules j and returns its run identifier.
func (s *JobScheduler) AddJob(j *Job) (string, error) {
	if j == nil || j.kind == kindNone {
		return "", &SchedulerError{Op: "add", Err: ErrJobNotConfigured}
	}
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return "", &SchedulerError{Op: "add", ID: j.ID(), Err: ErrSchedulerShutdown}
	}
	if _, ok := l.entries[j.id]; ok {
		return "", &SchedulerError{Op: "add", ID: j.ID(), Err: ErrDuplicateJob}
	}
	e := l.scheduleLocked(j)
	l.entries[j.id] = e
	l.logScheduled("job scheduled", e)
	return j.ID(), nil
}

// Remove unschedules the job with run identifier id.
func (s *JobScheduler) Remove(id string) error {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return &SchedulerError{Op: "remove", ID: id, Err: ErrJobNotFound}
	}
	l := s.l
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return &SchedulerError{Op: "remove", ID: id, Err: ErrSchedulerShutdown}
	}
	e, ok := l.entries[uid]
	if !ok {
		l.mu.Unlock()
		return &SchedulerError{Op: "remove", ID: id, Err: ErrJobNotFound}
	}
	l.c.Remove(e.id)
	delete(l.entries, uid)
	l.mu.Unlock()

	l.log.Debug("job removed", logx.String("job", e.job.ID()), logx.Int64("sys_id", e.job.sysID))
	e.job.emit(model.EventRemoved)
	return nil
}

// Replace swaps the schedule of an already registered job, keeping its run
// identifier. Build j with WithCronUUID. The old schedule is unregistered before
// the new one so the two never both fire.
func (s *JobScheduler) Replace(j *Job) error {
	if j == nil || j.kind == kindNone {
		return &SchedulerError{Op: "replace", Err: ErrJobNotConfigured}
	}
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return &SchedulerError{Op: "replace", ID: j.ID(), Err: ErrSchedulerShutdown}
	}
	old, ok := l.entries[j.id]
	if !ok {
		return &SchedulerError{Op: "replace", ID: j.ID(), Err: ErrJobNotFound}
	}
	l.c.Remove(old.id)
	e := l.scheduleLocked(j)
	l.entries[j.id] = e
	l.logScheduled("job replaced", e)
	return nil
}

// Start launches the trigger loop in the background and returns.
func (s *JobScheduler) Start() error {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return &SchedulerError{Op: "start", Err: ErrSchedulerShutdown}
	}
	if l.running {
		return nil
	}
	l.c.Start()
	l.running = true
	l.log.Info("scheduler started", logx.String("tz", l.loc.String()), logx.Int("jobs", len(l.entries)))
	return nil
}

// Shutdown stops triggering, emits Stop for every scheduled job, runs the shutdown
// handler and drains pending event writes. In-flight bodies are not awaited unless
// ShutdownGrace is set. A second call returns ErrSchedulerShutdown.
func (s *JobScheduler) Shutdown(ctx context.Context) error {
	l := s.l
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return &SchedulerError{Op: "shutdown", Err: ErrSchedulerShutdown}
	}
	l.stopped = true
	l.running = false
	jobs := make([]*Job, 0, len(l.entries))
	for _, e := range l.entries {
		jobs = append(jobs, e.job)
	}
	handler := l.onShutdown
	grace := l.cfg.ShutdownGrace
	l.mu.Unlock()

	start := time.Now()
	l.log.Info("scheduler stopping", logx.Int("jobs", len(jobs)))

	done := l.c.Stop()
	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-done.Done():
		case <-t.C:
			l.log.Warn("shutdown grace elapsed with jobs still running", logx.Duration("grace", grace))
		case <-ctx.Done():
		}
		t.Stop()
	}
	l.cancel()

	for _, j := range jobs {
		j.emit(model.EventStop)
	}
	if handler != nil {
		handler(ctx)
	}

	if err := l.writer.close(ctx); err != nil {
		l.log.Warn("event drain incomplete", logx.Int("pending", l.writer.pending()), logx.Err(err))
		return &SchedulerError{Op: "shutdown", Err: err}
	}
	l.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// Len is the number of scheduled jobs.
func (s *JobScheduler) Len() int {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	return len(s.l.entries)
}

func (l *loop) scheduleLocked(j *Job) *entry {
	j.events = l.emit
	run := cron.FuncJob(func() { j.fire(l.ctx) })

	var sched cron.Schedule
	var spread time.Duration
	switch j.kind {
	case kindInterval:
		sched, spread = intervalSchedule(j.every, time.Now().In(l.loc), l.cfg.StartupSpread, j.ID())
	default:
		sched = j.schedule
	}
	return &entry{job: j, id: l.c.Schedule(sched, run), spread: spread}
}

func (l *loop) emit(j *Job, status model.EventStatus) {
	l.writer.enqueue(j, status)
}

func (l *loop) logScheduled(msg string, e *entry) {
	if !l.log.Enabled(logx.LevelDebug) {
		return
	}
	fields := []logx.Field{
		logx.String("job", e.job.ID()),
		logx.Int64("sys_id", e.job.sysID),
		logx.String("kind", e.job.kind.String()),
		logx.String("spec", e.job.Spec()),
	}
	if e.spread > 0 {
		fields = append(fields, logx.Duration("spread", e.spread))
	}
	if e.job.schedule != nil {
		fields = append(fields, logx.Time("next", e.job.schedule.Next(time.Now().In(l.loc))))
	}
	l.log.Debug(msg, fields...)
}

// JobInfo describes one scheduled job.
type JobInfo struct {
	ID     string        `json:"id"`
	SysID  int64         `json:"sys_id"`
	Kind   string        `json:"kind"`
	Spec   string        `json:"spec"`
	Spread time.Duration `json:"spread,omitempty"`
	Next   time.Time     `json:"next,omitempty"`
	Prev   time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Running       bool      `json:"running"`
	Stopped       bool      `json:"stopped"`
	Timezone      string    `json:"timezone"`
	Jobs          []JobInfo `json:"jobs"`
	EventWorkers  int       `json:"event_workers"`
	EventQueueCap int       `json:"event_queue_cap"`
	EventsPending int       `json:"events_pending"`
	EventsWritten uint64    `json:"events_written"`
	EventsDropped uint64    `json:"events_dropped"`
}

func (s *JobScheduler) Snapshot() Snapshot {
	l := s.l
	l.mu.Lock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	out := Snapshot{
		Running:  l.running,
		Stopped:  l.stopped,
		Timezone: l.loc.String(),
	}
	l.mu.Unlock()

	out.Jobs = make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		ce := l.c.Entry(e.id)
		out.Jobs = append(out.Jobs, JobInfo{
			ID:     e.job.ID(),
			SysID:  e.job.sysID,
			Kind:   e.job.kind.String(),
			Spec:   e.job.Spec(),
			Spread: e.spread,
			Next:   ce.Next,
			Prev:   ce.Prev,
		})
	}
	sort.Slice(out.Jobs, func(i, k int) bool {
		if out.Jobs[i].SysID != out.Jobs[k].SysID {
			return out.Jobs[i].SysID < out.Jobs[k].SysID
		}
		return out.Jobs[i].ID < out.Jobs[k].ID
	})

	w := l.writer
	out.EventWorkers = w.workerCount
	out.EventQueueCap = w.queueCap
	out.EventsPending = w.pending()
	out.EventsWritten = w.written.Load()
	out.EventsDropped = w.dropped.Load()
	return out
}
