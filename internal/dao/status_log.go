package dao

import (
	"context"
	"database/sql"
	"time"

	"opsadmin/internal/model"
	"opsadmin/internal/storage"
)

// ScheduleStatusLogDao records one row per execution attempt.
type ScheduleStatusLogDao struct {
	db  *storage.DB
	now func() time.Time
}

func NewScheduleStatusLogDao(db *storage.DB) *ScheduleStatusLogDao {
	return &ScheduleStatusLogDao{db: db, now: time.Now}
}

// Add inserts a Running row for jobID under run id uuid and returns its id.
func (d *ScheduleStatusLogDao) Add(ctx context.Context, jobID int64, uuid string) (int64, error) {
	now := d.now().UnixMilli()
	var id int64
	err := d.db.QueryRowContext(ctx, d.db.Rebind(
		`INSERT INTO schedule_status_log(job_id, uuid, error, cost, status, created_at, updated_at)
		 VALUES(?,?,NULL,0,?,?,?) RETURNING id`),
		jobID, uuid, int(model.RunRunning), now, now,
	).Scan(&id)
	if err != nil {
		return 0, mapErr("add status log", err)
	}
	return id, nil
}

// Update closes out a run: cost in ms, errMsg nil on success.
func (d *ScheduleStatusLogDao) Update(ctx context.Context, id, cost int64, errMsg *string, status model.RunStatus) error {
	var e any
	if errMsg != nil {
		e = *errMsg
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind(
		`UPDATE schedule_status_log SET cost = ?, error = ?, status = ?, updated_at = ? WHERE id = ?`),
		cost, e, int(status), d.now().UnixMilli(), id,
	)
	return affectedOne("update status log", res, err)
}

// Status overwrites only the status column.
func (d *ScheduleStatusLogDao) Status(ctx context.Context, id int64, status model.RunStatus) error {
	res, err := d.db.ExecContext(ctx, d.db.Rebind(
		`UPDATE schedule_status_log SET status = ?, updated_at = ? WHERE id = ?`),
		int(status), d.now().UnixMilli(), id,
	)
	return affectedOne("set status log status", res, err)
}

// ListByJob returns the newest rows first; limit <= 0 means 100.
func (d *ScheduleStatusLogDao) ListByJob(ctx context.Context, jobID int64, limit int) ([]model.ScheduleStatusLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, d.db.Rebind(
		`SELECT id, job_id, uuid, error, cost, status, created_at, updated_at
		 FROM schedule_status_log WHERE job_id = ? ORDER BY id DESC LIMIT ?`), jobID, limit)
	if err != nil {
		return nil, mapErr("list status logs", err)
	}
	defer rows.Close()

	var out []model.ScheduleStatusLog
	for rows.Next() {
		var (
			l                model.ScheduleStatusLog
			errMsg           sql.NullString
			st               int
			created, updated int64
		)
		if err := rows.Scan(&l.ID, &l.JobID, &l.UUID, &errMsg, &l.Cost, &st, &created, &updated); err != nil {
			return nil, mapErr("list status logs", err)
		}
		if errMsg.Valid {
			s := errMsg.String
			l.Error = &s
		}
		l.Status = model.RunStatus(st)
		l.CreatedAt = time.UnixMilli(created)
		l.UpdatedAt = time.UnixMilli(updated)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list status logs", err)
	}
	return out, nil
}

// PruneBefore deletes finished rows created before t and returns how many went away.
// Running rows are kept so an in-flight update never loses its target.
func (d *ScheduleStatusLogDao) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.db.Rebind(
		`DELETE FROM schedule_status_log WHERE created_at < ? AND status <> ?`), t.UnixMilli(), int(model.RunRunning))
	if err != nil {
		return 0, mapErr("prune status logs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
