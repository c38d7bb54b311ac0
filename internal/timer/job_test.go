package timer

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"opsadmin/internal/model"
	logx "opsadmin/pkg/logx"
)

func TestJobRunOutcomes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		action  Action
		status  model.RunStatus
		wantErr string
	}{
		{name: "completed", action: nopAction, status: model.RunCompleted},
		{name: "failed", action: func(context.Context) error { return errors.New("boom") }, status: model.RunFailed, wantErr: "boom"},
		{name: "panic", action: func(context.Context) error { panic("kaput") }, status: model.RunFailed, wantErr: "panic: kaput"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			id := env.seedInterval(t, "job-"+tc.name, 60)
			j, err := New(id, env.deps).WithIntervalJob(60, tc.action)
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			j.run(context.Background())

			rows := env.statusRows(t, id)
			if len(rows) != 1 {
				t.Fatalf("expected exactly one status row, got %d", len(rows))
			}
			r := rows[0]
			if r.Status != tc.status || r.UUID != j.ID() || r.Cost < 0 {
				t.Fatalf("unexpected row %+v", r)
			}
			if tc.wantErr == "" && r.Error != nil {
				t.Fatalf("expected no error, got %q", *r.Error)
			}
			if tc.wantErr != "" && (r.Error == nil || !strings.Contains(*r.Error, tc.wantErr)) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, r.Error)
			}
		})
	}
}

func TestJobRunOfflineWritesNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	id := env.seedInterval(t, "off", 60)
	if err := env.jobs.SetStatus(context.Background(), id, model.JobOffline); err != nil {
		t.Fatalf("set status: %v", err)
	}

	var ran atomic.Int32
	j, _ := New(id, env.deps).WithIntervalJob(60, func(context.Context) error { ran.Add(1); return nil })
	j.run(context.Background())
	j.writeEvent(context.Background(), model.EventStart)

	if ran.Load() != 0 {
		t.Fatalf("offline job body ran")
	}
	if n := len(env.statusRows(t, id)); n != 0 {
		t.Fatalf("expected no status rows, got %d", n)
	}
	if n := len(env.eventRows(t, id)); n != 0 {
		t.Fatalf("expected no event rows, got %d", n)
	}
}

func TestJobRunMissingRowIsNoop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	var ran atomic.Int32
	j, _ := New(404, env.deps).WithIntervalJob(60, func(context.Context) error { ran.Add(1); return nil })
	j.run(context.Background())
	if ran.Load() != 0 {
		t.Fatalf("body ran for a missing row")
	}
	if n := len(env.statusRows(t, 404)); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

type brokenJobs struct{}

func (brokenJobs) Info(context.Context, int64) (model.ScheduleJob, error) {
	return model.ScheduleJob{}, errors.New("connection refused")
}

type brokenStatus struct{}

func (brokenStatus) Add(context.Context, int64, string) (int64, error) {
	return 0, errors.New("disk full")
}

func (brokenStatus) Update(context.Context, int64, int64, *string, model.RunStatus) error {
	return errors.New("disk full")
}

func TestJobBookkeepingFailuresNeverBlockAction(t *testing.T) {
	t.Parallel()

	online := model.ScheduleJob{ID: 1, Status: model.JobOnline}
	cases := []struct {
		name string
		deps Deps
	}{
		{name: "lookup fails", deps: Deps{Jobs: brokenJobs{}, StatusLogs: brokenStatus{}, Log: logx.Nop()}},
		{name: "status log fails", deps: Deps{Jobs: staticJobs{online}, StatusLogs: brokenStatus{}, Log: logx.Nop()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var ran atomic.Int32
			j, err := New(1, tc.deps).WithIntervalJob(5, func(context.Context) error { ran.Add(1); return errors.New("own failure") })
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			for i := 0; i < 10; i++ {
				j.run(context.Background())
			}
			if ran.Load() != 10 {
				t.Fatalf("expected 10 runs, got %d", ran.Load())
			}
			if j.suppressed.Load() == 0 {
				t.Fatalf("expected repeated bookkeeping errors to be throttled")
			}
		})
	}
}

type staticJobs []model.ScheduleJob

func (s staticJobs) Info(_ context.Context, id int64) (model.ScheduleJob, error) {
	for _, j := range s {
		if j.ID == id {
			return j, nil
		}
	}
	return model.ScheduleJob{}, errors.New("not here")
}

func TestJobBuilders(t *testing.T) {
	t.Parallel()
	base := New(1, Deps{})

	if _, err := base.WithCronJob("* * * * *", nopAction); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("five-field cron should be rejected, got %v", err)
	}
	var se *SchedulerError
	if _, err := base.WithCronJob("not cron", nopAction); !errors.As(err, &se) || se.Op != "build" {
		t.Fatalf("expected SchedulerError, got %v", err)
	}
	if _, err := base.WithIntervalJob(0, nopAction); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for zero interval, got %v", err)
	}
	var pe *ParseError
	if _, err := base.WithCronUUID("nope", "*/5 * * * * *", nopAction); !errors.As(err, &pe) || pe.Field != "uuid" {
		t.Fatalf("expected ParseError on uuid, got %v", err)
	}

	j, err := base.WithCronJob("*/5 * * * * *", nopAction)
	if err != nil {
		t.Fatalf("cron build: %v", err)
	}
	again, err := base.WithCronUUID(j.ID(), "@hourly", nopAction)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if again.ID() != j.ID() || again.Spec() != "@hourly" {
		t.Fatalf("rebuild lost identity: %s %s", again.ID(), again.Spec())
	}
	if base.ID() != "" || base.kind != kindNone {
		t.Fatalf("builders must not mutate the receiver")
	}

	iv, _ := base.WithIntervalJob(90, nopAction)
	if iv.Spec() != "@every 1m30s" {
		t.Fatalf("unexpected interval spec %q", iv.Spec())
	}
}
