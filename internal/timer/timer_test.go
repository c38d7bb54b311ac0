package timer

import (
	"context"
	"testing"
	"time"

	"opsadmin/internal/dao"
	"opsadmin/internal/model"
	"opsadmin/internal/storage"
	logx "opsadmin/pkg/logx"
)

type testEnv struct {
	db     *storage.DB
	jobs   *dao.ScheduleJobDao
	status *dao.ScheduleStatusLogDao
	events *dao.ScheduleEventLogDao
	deps   Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &testEnv{
		db:     db,
		jobs:   dao.NewScheduleJobDao(db),
		status: dao.NewScheduleStatusLogDao(db),
		events: dao.NewScheduleEventLogDao(db),
		deps:   NewDeps(db, nil, logx.Nop()),
	}
}

func (e *testEnv) seed(t *testing.T, j model.ScheduleJob) int64 {
	t.Helper()
	id, err := e.jobs.Add(context.Background(), j)
	if err != nil {
		t.Fatalf("seed %q: %v", j.Name, err)
	}
	return id
}

func (e *testEnv) seedInterval(t *testing.T, name string, seconds int64) int64 {
	t.Helper()
	return e.seed(t, model.ScheduleJob{Name: name, Source: model.SourceUser, JobType: model.JobTypeInterval, Interval: seconds})
}

func (e *testEnv) statusRows(t *testing.T, jobID int64) []model.ScheduleStatusLog {
	t.Helper()
	rows, err := e.status.ListByJob(context.Background(), jobID, 0)
	if err != nil {
		t.Fatalf("status rows: %v", err)
	}
	return rows
}

func (e *testEnv) eventRows(t *testing.T, jobID int64) []model.ScheduleEventLog {
	t.Helper()
	rows, err := e.events.ListByJob(context.Background(), jobID, 0)
	if err != nil {
		t.Fatalf("event rows: %v", err)
	}
	return rows
}

func newTestScheduler(t *testing.T, cfg Config) *JobScheduler {
	t.Helper()
	s, err := NewJobScheduler(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func nopAction(context.Context) error { return nil }
