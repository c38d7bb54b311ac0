package timer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"opsadmin/internal/model"
	logx "opsadmin/pkg/logx"
)

// SkipRegistered marks a row already scheduled by an earlier pass.
const SkipRegistered = "already registered"

// tracked keeps sys_id -> run identifier so repeated passes do not double-schedule.
type tracked struct {
	mu  sync.Mutex
	ids map[int64]string
}

func (t *tracked) get(sysID int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[sysID]
	return id, ok
}

func (t *tracked) put(sysID int64, id string) {
	t.mu.Lock()
	if t.ids == nil {
		t.ids = map[int64]string{}
	}
	t.ids[sysID] = id
	t.mu.Unlock()
}

// SysTaskRegister schedules System rows whose sys_code has a compiled implementation.
type SysTaskRegister struct {
	sched    *JobScheduler
	jobs     JobLister
	registry *Registry
	deps     Deps
	log      logx.Logger
	seen     tracked
}

func NewSysTaskRegister(sched *JobScheduler, jobs JobLister, registry *Registry, deps Deps) *SysTaskRegister {
	return &SysTaskRegister{
		sched:    sched,
		jobs:     jobs,
		registry: registry,
		deps:     deps,
		log:      deps.logger().With(logx.String("comp", "timer.sys")),
	}
}

// Register walks every System row. Stale rows are skipped and a row that fails to
// build is reported; neither stops the pass. The error is non-nil only when the
// rows cannot be listed.
func (r *SysTaskRegister) Register(ctx context.Context) (RegisterReport, error) {
	rep := RegisterReport{Source: model.SourceSystem.String()}
	rows, err := r.jobs.ListBySource(ctx, model.SourceSystem)
	if err != nil {
		return rep, err
	}
	for _, row := range rows {
		if _, ok := r.seen.get(row.ID); ok {
			rep.skip(row.ID, row.Name, SkipRegistered)
			continue
		}
		f, ok := r.registry.Lookup(row.SysCode)
		if !ok {
			r.log.Debug("no task for sys_code", logx.String("sys_code", row.SysCode), logx.Int64("sys_id", row.ID))
			rep.skip(row.ID, row.Name, SkipUnknownSysCode)
			continue
		}

		if row.JobType != model.JobTypeInterval && row.JobType != model.JobTypeCron {
			rep.skip(row.ID, row.Name, SkipUnknownType)
			continue
		}
		j, err := r.build(row, f)
		if err != nil {
			rep.fail(row.ID, row.Name, err)
			continue
		}
		id, err := r.sched.AddJob(j)
		if err != nil {
			rep.fail(row.ID, row.Name, err)
			continue
		}
		r.seen.put(row.ID, id)
		rep.Registered = append(rep.Registered, id)
	}
	rep.log(r.log)
	return rep, nil
}

func (r *SysTaskRegister) build(row model.ScheduleJob, f TaskFactory) (*Job, error) {
	if row.JobType == model.JobTypeCron {
		if f.Cron == nil {
			return nil, &SchedulerError{Op: "build", Err: fmt.Errorf("%w: %s has no cron factory", ErrJobNotConfigured, row.SysCode)}
		}
		return f.Cron(row.ID, row.Expression, r.deps)
	}
	if f.Interval == nil {
		return nil, &SchedulerError{Op: "build", Err: fmt.Errorf("%w: %s has no interval factory", ErrJobNotConfigured, row.SysCode)}
	}
	return f.Interval(row.ID, row.Interval, r.deps)
}

// UserTaskRunner executes the body of a database-defined task.
type UserTaskRunner interface {
	RunUserTask(ctx context.Context, job model.ScheduleJob) error
}

// NoopUserRunner only logs the trigger and reports success.
type NoopUserRunner struct {
	Log logx.Logger
}

func (r NoopUserRunner) RunUserTask(_ context.Context, job model.ScheduleJob) error {
	if !r.Log.IsZero() {
		r.Log.Info("user task triggered", logx.Int64("sys_id", job.ID), logx.String("name", job.Name))
	}
	return nil
}

// UserTaskRegister schedules User rows straight from their stored expression or interval.
type UserTaskRegister struct {
	sched  *JobScheduler
	jobs   JobLister
	runner UserTaskRunner
	deps   Deps
	log    logx.Logger
	seen   tracked
}

func NewUserTaskRegister(sched *JobScheduler, jobs JobLister, runner UserTaskRunner, deps Deps) *UserTaskRegister {
	log := deps.logger().With(logx.String("comp", "timer.user"))
	if runner == nil {
		runner = NoopUserRunner{Log: log}
	}
	return &UserTaskRegister{sched: sched, jobs: jobs, runner: runner, deps: deps, log: log}
}

func (r *UserTaskRegister) Register(ctx context.Context) (RegisterReport, error) {
	rep := RegisterReport{Source: model.SourceUser.String()}
	rows, err := r.jobs.ListBySource(ctx, model.SourceUser)
	if err != nil {
		return rep, err
	}
	for _, row := range rows {
		if _, ok := r.seen.get(row.ID); ok {
			rep.skip(row.ID, row.Name, SkipRegistered)
			continue
		}
		j, err := r.build(row)
		if err != nil {
			if errors.Is(err, errSkipType) {
				rep.skip(row.ID, row.Name, SkipUnknownType)
				continue
			}
			rep.fail(row.ID, row.Name, err)
			continue
		}
		id, err := r.sched.AddJob(j)
		if err != nil {
			rep.fail(row.ID, row.Name, err)
			continue
		}
		r.seen.put(row.ID, id)
		rep.Registered = append(rep.Registered, id)
	}
	rep.log(r.log)
	return rep, nil
}

var errSkipType = errors.New("unsupported job_type")

func (r *UserTaskRegister) build(row model.ScheduleJob) (*Job, error) {
	action := func(ctx context.Context) error { return r.runner.RunUserTask(ctx, row) }
	base := New(row.ID, r.deps)
	switch row.JobType {
	case model.JobTypeCron:
		j, err := base.WithCronJob(row.Expression, action)
		if err != nil {
			return nil, &ParseError{Field: "expression", Value: row.Expression, Err: err}
		}
		return j, nil
	case model.JobTypeInterval:
		j, err := base.WithIntervalJob(row.Interval, action)
		if err != nil {
			return nil, &ParseError{Field: "interval", Value: strconv.FormatInt(row.Interval, 10), Err: err}
		}
		return j, nil
	default:
		return nil, errSkipType
	}
}
