package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"opsadmin/internal/model"
	"opsadmin/internal/storage"
	logx "opsadmin/pkg/logx"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedJob(t *testing.T, jobs *ScheduleJobDao, j model.ScheduleJob) int64 {
	t.Helper()
	id, err := jobs.Add(context.Background(), j)
	if err != nil {
		t.Fatalf("add job %q: %v", j.Name, err)
	}
	return id
}

func TestScheduleJobDaoCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	jobs := NewScheduleJobDao(openDB(t))

	sysID := seedJob(t, jobs, model.ScheduleJob{Name: "prune", Source: model.SourceSystem, SysCode: "status_log_prune", JobType: model.JobTypeInterval, Interval: 60})
	userID := seedJob(t, jobs, model.ScheduleJob{Name: "report", Source: model.SourceUser, JobType: model.JobTypeCron, Expression: "0 */5 * * * *", Desc: "weekly report"})

	got, err := jobs.Info(ctx, sysID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got.Name != "prune" || got.SysCode != "status_log_prune" || got.Interval != 60 || got.Status != model.JobOnline {
		t.Fatalf("unexpected job %+v", got)
	}
	if got.Expression != "" {
		t.Fatalf("interval job should have no expression, got %q", got.Expression)
	}

	byName, err := jobs.InfoByName(ctx, "report")
	if err != nil {
		t.Fatalf("info by name: %v", err)
	}
	if byName.ID != userID || byName.Expression != "0 */5 * * * *" || byName.Desc != "weekly report" {
		t.Fatalf("unexpected job %+v", byName)
	}

	all, err := jobs.List(ctx, ListFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: n=%d err=%v", len(all), err)
	}
	sys, err := jobs.ListBySource(ctx, model.SourceSystem)
	if err != nil || len(sys) != 1 || sys[0].ID != sysID {
		t.Fatalf("list system: %+v err=%v", sys, err)
	}

	if err := jobs.SetStatus(ctx, userID, model.JobOffline); err != nil {
		t.Fatalf("set status: %v", err)
	}
	off, err := jobs.List(ctx, ListFilter{Status: model.JobOffline})
	if err != nil || len(off) != 1 || off[0].ID != userID {
		t.Fatalf("list offline: %+v err=%v", off, err)
	}

	byName.Expression = "0 0 * * * *"
	byName.Status = model.JobOffline
	if err := jobs.Update(ctx, byName); err != nil {
		t.Fatalf("update: %v", err)
	}
	if j, _ := jobs.Info(ctx, userID); j.Expression != "0 0 * * * *" {
		t.Fatalf("update not persisted: %+v", j)
	}
}

func TestScheduleJobDaoErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	jobs := NewScheduleJobDao(openDB(t))

	if _, err := jobs.Info(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var pe *PersistenceError
	if _, err := jobs.InfoByName(ctx, "nope"); !errors.As(err, &pe) || pe.Op != "job info by name" {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	j := model.ScheduleJob{Name: "dup", Source: model.SourceUser, JobType: model.JobTypeInterval, Interval: 5}
	seedJob(t, jobs, j)
	if _, err := jobs.Add(ctx, j); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	bad := model.ScheduleJob{Name: "bad", Source: model.SourceSystem, JobType: model.JobTypeInterval, Interval: 5}
	if _, err := jobs.Add(ctx, bad); err == nil {
		t.Fatalf("expected validation error for system job without sys_code")
	}

	if err := jobs.SetStatus(ctx, 999, model.JobOffline); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestScheduleJobDaoDeleteRequiresOffline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	jobs := NewScheduleJobDao(openDB(t))
	id := seedJob(t, jobs, model.ScheduleJob{Name: "x", Source: model.SourceUser, JobType: model.JobTypeInterval, Interval: 5})

	if err := jobs.Delete(ctx, id); !errors.Is(err, ErrJobOnline) {
		t.Fatalf("expected ErrJobOnline, got %v", err)
	}
	if err := jobs.SetStatus(ctx, id, model.JobOffline); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := jobs.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := jobs.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestScheduleStatusLogDaoLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	logs := NewScheduleStatusLogDao(openDB(t))

	id, err := logs.Add(ctx, 7, "run-uuid")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	rows, err := logs.ListByJob(ctx, 7, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list: %+v err=%v", rows, err)
	}
	if rows[0].Status != model.RunRunning || rows[0].Error != nil || rows[0].UUID != "run-uuid" {
		t.Fatalf("unexpected running row %+v", rows[0])
	}

	msg := "boom"
	if err := logs.Update(ctx, id, 15, &msg, model.RunFailed); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, _ = logs.ListByJob(ctx, 7, 10)
	if rows[0].Status != model.RunFailed || rows[0].Error == nil || *rows[0].Error != "boom" || rows[0].Cost != 15 {
		t.Fatalf("unexpected failed row %+v", rows[0])
	}

	if err := logs.Status(ctx, id, model.RunCompleted); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := logs.Update(ctx, 999, 1, nil, model.RunCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openDB(t)
	status := NewScheduleStatusLogDao(db)
	events := NewScheduleEventLogDao(db)

	old := time.Now().Add(-48 * time.Hour)
	status.now = func() time.Time { return old }
	events.now = func() time.Time { return old }

	doneID, _ := status.Add(ctx, 1, "u")
	_ = status.Update(ctx, doneID, 1, nil, model.RunCompleted)
	_, _ = status.Add(ctx, 1, "u") // still running
	_, _ = events.Add(ctx, 1, "u", model.EventStart)

	status.now = time.Now
	events.now = time.Now
	_, _ = events.Add(ctx, 1, "u", model.EventDone)

	cutoff := time.Now().Add(-24 * time.Hour)
	n, err := status.PruneBefore(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("prune status: n=%d err=%v", n, err)
	}
	n, err = events.PruneBefore(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("prune events: n=%d err=%v", n, err)
	}
	left, _ := events.ListByJob(ctx, 1, 0)
	if len(left) != 1 || left[0].Status != model.EventDone {
		t.Fatalf("unexpected remaining events %+v", left)
	}
}
