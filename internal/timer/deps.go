package timer

import (
	"context"
	"time"

	"opsadmin/internal/dao"
	"opsadmin/internal/eventbus"
	"opsadmin/internal/model"
	"opsadmin/internal/storage"
	logx "opsadmin/pkg/logx"
)

// JobStore resolves the ScheduleJob row a job reports against.
type JobStore interface {
	Info(ctx context.Context, id int64) (model.ScheduleJob, error)
}

// JobLister feeds the registers at boot.
type JobLister interface {
	ListBySource(ctx context.Context, src model.Source) ([]model.ScheduleJob, error)
}

type StatusLogStore interface {
	Add(ctx context.Context, jobID int64, uuid string) (int64, error)
	Update(ctx context.Context, id, cost int64, errMsg *string, status model.RunStatus) error
}

type EventLogStore interface {
	Add(ctx context.Context, jobID int64, uuid string, status model.EventStatus) (int64, error)
}

// Deps is what a Job needs for its bookkeeping.
type Deps struct {
	Jobs       JobStore
	StatusLogs StatusLogStore
	EventLogs  EventLogStore
	Bus        eventbus.Bus // optional
	Log        logx.Logger

	// BookkeepingTimeout bounds each status/event log write. 0 means 5s.
	BookkeepingTimeout time.Duration
}

// NewDeps wires the Dao layer over db.
func NewDeps(db *storage.DB, bus eventbus.Bus, log logx.Logger) Deps {
	return Deps{
		Jobs:       dao.NewScheduleJobDao(db),
		StatusLogs: dao.NewScheduleStatusLogDao(db),
		EventLogs:  dao.NewScheduleEventLogDao(db),
		Bus:        bus,
		Log:        log,
	}
}

func (d Deps) logger() logx.Logger {
	if d.Log.IsZero() {
		return logx.Nop()
	}
	return d.Log
}

func (d Deps) timeout() time.Duration {
	if d.BookkeepingTimeout <= 0 {
		return 5 * time.Second
	}
	return d.BookkeepingTimeout
}

// bookkeepingCtx detaches from parent cancellation so a run's closing update
// still lands while the scheduler is shutting down.
func (d Deps) bookkeepingCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), d.timeout())
}
