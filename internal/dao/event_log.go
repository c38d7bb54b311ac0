package dao

import (
	"context"
	"time"

	"opsadmin/internal/model"
	"opsadmin/internal/storage"
)

// ScheduleEventLogDao appends scheduler lifecycle notifications.
type ScheduleEventLogDao struct {
	db  *storage.DB
	now func() time.Time
}

func NewScheduleEventLogDao(db *storage.DB) *ScheduleEventLogDao {
	return &ScheduleEventLogDao{db: db, now: time.Now}
}

func (d *ScheduleEventLogDao) Add(ctx context.Context, jobID int64, uuid string, status model.EventStatus) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, d.db.Rebind(
		`INSERT INTO schedule_event_log(job_id, uuid, status, created_at) VALUES(?,?,?,?) RETURNING id`),
		jobID, uuid, int(status), d.now().UnixMilli(),
	).Scan(&id)
	if err != nil {
		return 0, mapErr("add event log", err)
	}
	return id, nil
}

// ListByJob returns the newest rows first; limit <= 0 means 100.
func (d *ScheduleEventLogDao) ListByJob(ctx context.Context, jobID int64, limit int) ([]model.ScheduleEventLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, d.db.Rebind(
		`SELECT id, job_id, uuid, status, created_at FROM schedule_event_log WHERE job_id = ? ORDER BY id DESC LIMIT ?`),
		jobID, limit)
	if err != nil {
		return nil, mapErr("list event logs", err)
	}
	defer rows.Close()

	var out []model.ScheduleEventLog
	for rows.Next() {
		var (
			l       model.ScheduleEventLog
			st      int
			created int64
		)
		if err := rows.Scan(&l.ID, &l.JobID, &l.UUID, &st, &created); err != nil {
			return nil, mapErr("list event logs", err)
		}
		l.Status = model.EventStatus(st)
		l.CreatedAt = time.UnixMilli(created)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list event logs", err)
	}
	return out, nil
}

func (d *ScheduleEventLogDao) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.db.Rebind(`DELETE FROM schedule_event_log WHERE created_at < ?`), t.UnixMilli())
	if err != nil {
		return 0, mapErr("prune event logs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
