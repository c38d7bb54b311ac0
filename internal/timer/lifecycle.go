package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	rtsup "opsadmin/internal/runtime/supervisor"
	logx "opsadmin/pkg/logx"
)

// BootReport is the result of the background registration pass.
type BootReport struct {
	System RegisterReport `json:"system"`
	User   RegisterReport `json:"user"`
	Took   time.Duration  `json:"took"`
	Err    string         `json:"err,omitempty"`
}

// Lifecycle owns scheduler bootstrap and teardown for the process. Start returns
// immediately; registration and the loop start happen on a supervised goroutine.
// Shutdown must complete before the database is closed.
type Lifecycle struct {
	sched *JobScheduler
	sys   *SysTaskRegister
	user  *UserTaskRegister
	log   logx.Logger

	mu     sync.Mutex
	sup    *rtsup.Supervisor
	ready  chan struct{}
	report BootReport

	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
}

func NewLifecycle(sched *JobScheduler, sys *SysTaskRegister, user *UserTaskRegister, log logx.Logger) *Lifecycle {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Lifecycle{
		sched: sched,
		sys:   sys,
		user:  user,
		log:   log.With(logx.String("comp", "timer.lifecycle")),
		ready: make(chan struct{}),
	}
}

// Start kicks off registration (system rows, then user rows) followed by the
// scheduler loop. It never blocks on the database.
func (l *Lifecycle) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		sup := rtsup.New(ctx, rtsup.WithLogger(l.log))
		l.mu.Lock()
		l.sup = sup
		l.mu.Unlock()
		sup.Go("timer.bootstrap", l.boot)
	})
}

func (l *Lifecycle) boot(ctx context.Context) error {
	defer close(l.ready)
	start := time.Now()
	var rep BootReport
	var errs []error

	if l.sys != nil {
		r, err := l.sys.Register(ctx)
		rep.System = r
		if err != nil {
			l.log.Error("system task register failed", logx.Err(err))
			errs = append(errs, err)
		}
	}
	if l.user != nil {
		r, err := l.user.Register(ctx)
		rep.User = r
		if err != nil {
			l.log.Error("user task register failed", logx.Err(err))
			errs = append(errs, err)
		}
	}
	// The loop runs even if a register pass failed; whatever was added still fires.
	if err := l.sched.Start(); err != nil {
		errs = append(errs, err)
	}
	rep.Took = time.Since(start)
	if err := errors.Join(errs...); err != nil {
		rep.Err = err.Error()
	}

	l.mu.Lock()
	l.report = rep
	l.mu.Unlock()
	l.log.Info("timer ready",
		logx.Int("jobs", l.sched.Len()),
		logx.Int("system", len(rep.System.Registered)),
		logx.Int("user", len(rep.User.Registered)),
		logx.Duration("took", rep.Took),
	)
	return nil
}

// Ready is closed once the bootstrap goroutine has finished.
func (l *Lifecycle) Ready() <-chan struct{} { return l.ready }

func (l *Lifecycle) Report() BootReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.report
}

func (l *Lifecycle) Scheduler() *JobScheduler { return l.sched }

func (l *Lifecycle) Snapshot() Snapshot { return l.sched.Snapshot() }

// Shutdown cancels a bootstrap still in progress, then shuts the scheduler down.
// Repeated calls return the first result.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		l.mu.Lock()
		sup := l.sup
		l.mu.Unlock()
		if sup != nil {
			if err := sup.Stop(ctx); err != nil {
				l.log.Warn("bootstrap did not stop in time", logx.Err(err))
			}
		}
		l.shutdownErr = l.sched.Shutdown(ctx)
	})
	return l.shutdownErr
}
