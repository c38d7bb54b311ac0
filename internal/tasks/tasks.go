// Package tasks holds the compiled-in system tasks, keyed by sys_code.
package tasks

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"opsadmin/internal/timer"
	logx "opsadmin/pkg/logx"
)

const (
	CodeStatusLogPrune = "status_log_prune"
	CodeEventLogPrune  = "event_log_prune"
	CodeLogPrune       = "log_prune"
	CodeHeartbeat      = "heartbeat"
)

const DefaultRetention = 7 * 24 * time.Hour

// Pruner deletes log rows created before t.
type Pruner interface {
	PruneBefore(ctx context.Context, t time.Time) (int64, error)
}

// JobCounter reports the live job count (a *timer.JobScheduler).
type JobCounter interface {
	Len() int
}

type Deps struct {
	StatusLogs Pruner
	EventLogs  Pruner
	Scheduler  JobCounter
	Retention  time.Duration
	Log        logx.Logger

	Now func() time.Time
}

func (d Deps) cutoff() time.Time {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	ret := d.Retention
	if ret <= 0 {
		ret = DefaultRetention
	}
	return now().Add(-ret)
}

func (d Deps) logger() logx.Logger {
	if d.Log.IsZero() {
		return logx.Nop()
	}
	return d.Log.With(logx.String("comp", "tasks"))
}

// Register installs every system task into r.
func Register(r *timer.Registry, d Deps) error {
	return errors.Join(
		r.Register(CodeStatusLogPrune, timer.ActionTask(PruneStatusLogs(d))),
		r.Register(CodeEventLogPrune, timer.ActionTask(PruneEventLogs(d))),
		r.Register(CodeLogPrune, timer.ActionTask(PruneAll(d))),
		r.Register(CodeHeartbeat, timer.ActionTask(Heartbeat(d))),
	)
}

func PruneStatusLogs(d Deps) timer.Action {
	return pruneAction("status log", d.StatusLogs, d)
}

func PruneEventLogs(d Deps) timer.Action {
	return pruneAction("event log", d.EventLogs, d)
}

func pruneAction(table string, p Pruner, d Deps) timer.Action {
	log := d.logger()
	return func(ctx context.Context) error {
		if p == nil {
			return errors.New(table + " pruner not configured")
		}
		cutoff := d.cutoff()
		n, err := p.PruneBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("pruned "+table+" rows", logx.Int64("rows", n), logx.Time("before", cutoff))
		}
		return nil
	}
}

// PruneAll runs both prunes side by side; a failure in one does not cancel the other.
func PruneAll(d Deps) timer.Action {
	status, events := PruneStatusLogs(d), PruneEventLogs(d)
	return func(ctx context.Context) error {
		var g errgroup.Group
		errs := make([]error, 2)
		g.Go(func() error { errs[0] = status(ctx); return nil })
		g.Go(func() error { errs[1] = events(ctx); return nil })
		_ = g.Wait()
		return errors.Join(errs...)
	}
}

// Heartbeat logs that the loop is alive and how many jobs it holds.
func Heartbeat(d Deps) timer.Action {
	log := d.logger()
	start := time.Now()
	return func(context.Context) error {
		jobs := -1
		if d.Scheduler != nil {
			jobs = d.Scheduler.Len()
		}
		log.Info("timer heartbeat", logx.Int("jobs", jobs), logx.Duration("uptime", time.Since(start).Truncate(time.Second)))
		return nil
	}
}
