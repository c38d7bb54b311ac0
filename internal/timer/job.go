package timer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"opsadmin/internal/dao"
	"opsadmin/internal/eventbus"
	"opsadmin/internal/model"
	logx "opsadmin/pkg/logx"
)

// Action is the body of a job. ctx is cancelled when the scheduler shuts down.
type Action func(ctx context.Context) error

type scheduleKind int

const (
	kindNone scheduleKind = iota
	kindCron
	kindInterval
)

func (k scheduleKind) String() string {
	switch k {
	case kindCron:
		return "cron"
	case kindInterval:
		return "interval"
	default:
		return "none"
	}
}

// Cron expressions carry a leading seconds field.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron validates a six-field cron expression (or a descriptor like @hourly).
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	return s, nil
}

// Job binds a ScheduleJob row (sysID) to a schedule and an action. Every trigger
// runs the action wrapped in status-log bookkeeping unless the row is Offline.
//
// A Job is configured once through WithCronJob, WithIntervalJob or WithCronUUID,
// which return a fresh value; the receiver is left untouched.
type Job struct {
	sysID int64
	deps  Deps
	log   logx.Logger

	id       uuid.UUID
	kind     scheduleKind
	expr     string
	every    time.Duration
	schedule cron.Schedule
	action   Action

	// set by the scheduler on AddJob/Replace
	events func(j *Job, status model.EventStatus)

	errLimit   *rate.Limiter
	suppressed atomic.Uint64
}

// New starts a job for the ScheduleJob row sysID. It has no schedule yet.
func New(sysID int64, deps Deps) *Job {
	return &Job{sysID: sysID, deps: deps, log: deps.logger()}
}

func (j *Job) clone(id uuid.UUID, action Action) *Job {
	return &Job{
		sysID:    j.sysID,
		deps:     j.deps,
		log:      j.deps.logger().With(logx.String("job", id.String()), logx.Int64("sys_id", j.sysID)),
		id:       id,
		action:   action,
		errLimit: rate.NewLimiter(rate.Every(30*time.Second), 3),
	}
}

// WithCronJob configures a cron-driven job under a fresh run identifier.
func (j *Job) WithCronJob(expr string, action Action) (*Job, error) {
	return j.WithCronUUID(uuid.NewString(), expr, action)
}

// WithCronUUID rebuilds a cron job under an existing run identifier, for Replace.
func (j *Job) WithCronUUID(id, expr string, action Action) (*Job, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, &ParseError{Field: "uuid", Value: id, Err: err}
	}
	if action == nil {
		return nil, &SchedulerError{Op: "build", ID: uid.String(), Err: errors.New("nil action")}
	}
	s, err := ParseCron(expr)
	if err != nil {
		return nil, &SchedulerError{Op: "build", ID: uid.String(), Err: err}
	}
	out := j.clone(uid, action)
	out.kind = kindCron
	out.expr = strings.TrimSpace(expr)
	out.schedule = s
	return out, nil
}

// WithIntervalJob configures a fixed-delay job. The first trigger lands one
// interval after the job starts ticking.
func (j *Job) WithIntervalJob(seconds int64, action Action) (*Job, error) {
	uid := uuid.New()
	if action == nil {
		return nil, &SchedulerError{Op: "build", ID: uid.String(), Err: errors.New("nil action")}
	}
	if seconds <= 0 {
		return nil, &SchedulerError{Op: "build", ID: uid.String(), Err: fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidSchedule, seconds)}
	}
	out := j.clone(uid, action)
	out.kind = kindInterval
	out.every = time.Duration(seconds) * time.Second
	return out, nil
}

// ID is the run identifier. It is stable for the life of the registration and is
// written to every status and event log row.
func (j *Job) ID() string {
	if j.id == uuid.Nil {
		return ""
	}
	return j.id.String()
}

func (j *Job) SysID() int64 { return j.sysID }

// Spec renders the schedule for logs and snapshots.
func (j *Job) Spec() string {
	switch j.kind {
	case kindCron:
		return j.expr
	case kindInterval:
		return "@every " + j.every.String()
	default:
		return ""
	}
}

// fire is one trigger: Start hook, decorated run, Done hook.
func (j *Job) fire(ctx context.Context) {
	j.emit(model.EventStart)
	j.run(ctx)
	j.emit(model.EventDone)
}

func (j *Job) emit(status model.EventStatus) {
	if j.events != nil {
		j.events(j, status)
	}
}

// run executes the action wrapped in status-log bookkeeping. Bookkeeping failures
// are logged and never reach the scheduler.
func (j *Job) run(ctx context.Context) {
	row, err := j.lookup(ctx)
	switch {
	case errors.Is(err, dao.ErrNotFound):
		j.reportBookkeeping("lookup", err)
		return
	case err != nil:
		// Store unreachable: the action still runs, without bookkeeping.
		j.reportBookkeeping("lookup", err)
		_ = j.execute(ctx)
		return
	case row.Offline():
		return
	}

	bctx, cancel := j.deps.bookkeepingCtx(ctx)
	logID, err := j.deps.StatusLogs.Add(bctx, j.sysID, j.ID())
	cancel()
	if err != nil {
		j.reportBookkeeping("status log add", err)
	}

	start := time.Now()
	runErr := j.execute(ctx)
	cost := time.Since(start).Milliseconds()
	if logID == 0 {
		return
	}

	status := model.RunCompleted
	var msg *string
	if runErr != nil {
		status = model.RunFailed
		s := runErr.Error()
		msg = &s
	}
	bctx, cancel = j.deps.bookkeepingCtx(ctx)
	defer cancel()
	if err := j.deps.StatusLogs.Update(bctx, logID, cost, msg, status); err != nil {
		j.reportBookkeeping("status log update", err)
	}
}

func (j *Job) lookup(ctx context.Context) (model.ScheduleJob, error) {
	if j.deps.Jobs == nil {
		return model.ScheduleJob{}, errors.New("no job store")
	}
	bctx, cancel := j.deps.bookkeepingCtx(ctx)
	defer cancel()
	return j.deps.Jobs.Info(bctx, j.sysID)
}

func (j *Job) execute(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			j.log.Error("job panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		if err != nil {
			j.log.Warn("job failed", logx.Duration("took", time.Since(start)), logx.Err(err))
			return
		}
		j.log.Debug("job completed", logx.Duration("took", time.Since(start)))
	}()
	return j.action(ctx)
}

// writeEvent appends one event-log row, gated by the same Offline check as run.
func (j *Job) writeEvent(ctx context.Context, status model.EventStatus) {
	row, err := j.lookup(ctx)
	if err != nil {
		j.reportBookkeeping("event lookup", err)
		return
	}
	if row.Offline() {
		return
	}
	if j.deps.EventLogs != nil {
		bctx, cancel := j.deps.bookkeepingCtx(ctx)
		_, err = j.deps.EventLogs.Add(bctx, j.sysID, j.ID(), status)
		cancel()
		if err != nil {
			j.reportBookkeeping("event log add", err)
		}
	}
	if j.deps.Bus != nil {
		j.deps.Bus.Publish(eventbus.Event{
			Type: "timer.job." + status.String(),
			Data: JobEvent{ID: j.ID(), SysID: j.sysID, Status: status},
		})
	}
}

// JobEvent is the eventbus payload for timer.job.* events.
type JobEvent struct {
	ID     string
	SysID  int64
	Status model.EventStatus
}

func (j *Job) reportBookkeeping(op string, err error) {
	if j.errLimit != nil && !j.errLimit.Allow() {
		j.suppressed.Add(1)
		return
	}
	fields := []logx.Field{logx.String("op", op), logx.Err(err)}
	if n := j.suppressed.Swap(0); n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
	}
	if errors.Is(err, dao.ErrNotFound) {
		j.log.Warn("job row missing; skipping", fields...)
		return
	}
	j.log.Warn("job bookkeeping failed", fields...)
}
