package timer

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsadmin/internal/model"
	logx "opsadmin/pkg/logx"
)

// blockingLister holds registration until released, like a slow database at boot.
type blockingLister struct {
	release chan struct{}
	inner   JobLister
}

func (b blockingLister) ListBySource(ctx context.Context, src model.Source) ([]model.ScheduleJob, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.inner.ListBySource(ctx, src)
}

func TestLifecycleStartDoesNotBlock(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	s, err := NewJobScheduler(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	env.seed(t, model.ScheduleJob{Name: "sys", Source: model.SourceSystem, SysCode: "tick", JobType: model.JobTypeInterval, Interval: 60})
	env.seed(t, model.ScheduleJob{Name: "usr", Source: model.SourceUser, JobType: model.JobTypeInterval, Interval: 60})

	reg := NewRegistry()
	_ = reg.Register("tick", ActionTask(nopAction))
	lister := blockingLister{release: make(chan struct{}), inner: env.jobs}

	life := NewLifecycle(s,
		NewSysTaskRegister(s, lister, reg, env.deps),
		NewUserTaskRegister(s.Attach(), lister, nil, env.deps),
		logx.Nop(),
	)

	begin := time.Now()
	life.Start(context.Background())
	if time.Since(begin) > 100*time.Millisecond {
		t.Fatalf("Start blocked")
	}
	select {
	case <-life.Ready():
		t.Fatalf("ready before registration could run")
	default:
	}

	close(lister.release)
	select {
	case <-life.Ready():
	case <-time.After(3 * time.Second):
		t.Fatalf("bootstrap never finished")
	}
	rep := life.Report()
	if len(rep.System.Registered) != 1 || len(rep.User.Registered) != 1 || rep.Err != "" {
		t.Fatalf("unexpected boot report %+v", rep)
	}
	if snap := s.Snapshot(); !snap.Running || len(snap.Jobs) != 2 {
		t.Fatalf("scheduler not running with both jobs: %+v", snap)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := life.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := life.Shutdown(ctx); err != nil {
		t.Fatalf("repeated lifecycle shutdown should be quiet, got %v", err)
	}
	if err := s.Shutdown(ctx); !errors.Is(err, ErrSchedulerShutdown) {
		t.Fatalf("scheduler should already be down, got %v", err)
	}
}

func TestLifecycleShutdownDuringBootstrap(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	s, _ := NewJobScheduler(Config{}, logx.Nop())
	lister := blockingLister{release: make(chan struct{}), inner: env.jobs}
	life := NewLifecycle(s, NewSysTaskRegister(s, lister, NewRegistry(), env.deps), nil, logx.Nop())

	life.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := life.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case <-life.Ready():
	case <-time.After(time.Second):
		t.Fatalf("bootstrap goroutine leaked")
	}
	if rep := life.Report(); rep.Err == "" {
		t.Fatalf("expected the cancelled bootstrap to report an error")
	}
}
