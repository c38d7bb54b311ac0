package dao

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"opsadmin/internal/model"
	"opsadmin/internal/storage"
)

const jobColumns = `id, name, source, job_type, sys_code, expression, interval_seconds, status, description, created_at, updated_at`

// ListFilter narrows ScheduleJobDao.List. Zero fields match everything.
type ListFilter struct {
	Source model.Source
	Status model.JobStatus
}

// ScheduleJobDao reads and maintains schedule_job rows.
type ScheduleJobDao struct {
	db  *storage.DB
	now func() time.Time
}

func NewScheduleJobDao(db *storage.DB) *ScheduleJobDao {
	return &ScheduleJobDao{db: db, now: time.Now}
}

func (d *ScheduleJobDao) List(ctx context.Context, f ListFilter) ([]model.ScheduleJob, error) {
	var (
		where []string
		args  []any
	)
	if f.Source != 0 {
		where = append(where, "source = ?")
		args = append(args, int(f.Source))
	}
	if f.Status != 0 {
		where = append(where, "status = ?")
		args = append(args, int(f.Status))
	}
	q := `SELECT ` + jobColumns + ` FROM schedule_job`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	rows, err := d.db.QueryContext(ctx, d.db.Rebind(q), args...)
	if err != nil {
		return nil, mapErr("list jobs", err)
	}
	defer rows.Close()

	var out []model.ScheduleJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, mapErr("list jobs", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list jobs", err)
	}
	return out, nil
}

func (d *ScheduleJobDao) ListBySource(ctx context.Context, src model.Source) ([]model.ScheduleJob, error) {
	return d.List(ctx, ListFilter{Source: src})
}

func (d *ScheduleJobDao) Info(ctx context.Context, id int64) (model.ScheduleJob, error) {
	row := d.db.QueryRowContext(ctx, d.db.Rebind(`SELECT `+jobColumns+` FROM schedule_job WHERE id = ?`), id)
	j, err := scanJob(row)
	if err != nil {
		return model.ScheduleJob{}, mapErr("job info", err)
	}
	return j, nil
}

func (d *ScheduleJobDao) InfoByName(ctx context.Context, name string) (model.ScheduleJob, error) {
	row := d.db.QueryRowContext(ctx, d.db.Rebind(`SELECT `+jobColumns+` FROM schedule_job WHERE name = ?`), strings.TrimSpace(name))
	j, err := scanJob(row)
	if err != nil {
		return model.ScheduleJob{}, mapErr("job info by name", err)
	}
	return j, nil
}

// Add validates and inserts j, returning the new id.
func (d *ScheduleJobDao) Add(ctx context.Context, j model.ScheduleJob) (int64, error) {
	if j.Status == 0 {
		j.Status = model.JobOnline
	}
	if err := j.Validate(); err != nil {
		return 0, &PersistenceError{Op: "add job", Err: err}
	}
	now := d.now().UnixMilli()
	var id int64
	err := d.db.QueryRowContext(ctx, d.db.Rebind(
		`INSERT INTO schedule_job(name, source, job_type, sys_code, expression, interval_seconds, status, description, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?) RETURNING id`),
		strings.TrimSpace(j.Name), int(j.Source), int(j.JobType), nullStr(j.SysCode), nullStr(j.Expression),
		nullInt(j.Interval), int(j.Status), j.Desc, now, now,
	).Scan(&id)
	if err != nil {
		return 0, mapErr("add job", err)
	}
	return id, nil
}

// Update rewrites the mutable columns of j (matched by ID).
func (d *ScheduleJobDao) Update(ctx context.Context, j model.ScheduleJob) error {
	if err := j.Validate(); err != nil {
		return &PersistenceError{Op: "update job", Err: err}
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind(
		`UPDATE schedule_job SET name = ?, source = ?, job_type = ?, sys_code = ?, expression = ?, interval_seconds = ?,
		 status = ?, description = ?, updated_at = ? WHERE id = ?`),
		strings.TrimSpace(j.Name), int(j.Source), int(j.JobType), nullStr(j.SysCode), nullStr(j.Expression),
		nullInt(j.Interval), int(j.Status), j.Desc, d.now().UnixMilli(), j.ID,
	)
	return affectedOne("update job", res, err)
}

func (d *ScheduleJobDao) SetStatus(ctx context.Context, id int64, status model.JobStatus) error {
	if status != model.JobOnline && status != model.JobOffline {
		return &PersistenceError{Op: "set job status", Err: fmt.Errorf("invalid status %d", int(status))}
	}
	res, err := d.db.ExecContext(ctx, d.db.Rebind(`UPDATE schedule_job SET status = ?, updated_at = ? WHERE id = ?`),
		int(status), d.now().UnixMilli(), id)
	return affectedOne("set job status", res, err)
}

// Delete removes an Offline job. Online jobs are rejected with ErrJobOnline.
func (d *ScheduleJobDao) Delete(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, d.db.Rebind(`DELETE FROM schedule_job WHERE id = ? AND status = ?`), id, int(model.JobOffline))
	if err != nil {
		return mapErr("delete job", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := d.Info(ctx, id); err != nil {
		return err
	}
	return &PersistenceError{Op: "delete job", Err: ErrJobOnline}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (model.ScheduleJob, error) {
	var (
		j                   model.ScheduleJob
		source, jobType, st int
		sysCode, expr       sql.NullString
		interval            sql.NullInt64
		created, updated    int64
	)
	if err := r.Scan(&j.ID, &j.Name, &source, &jobType, &sysCode, &expr, &interval, &st, &j.Desc, &created, &updated); err != nil {
		return model.ScheduleJob{}, err
	}
	j.Source = model.Source(source)
	j.JobType = model.JobType(jobType)
	j.Status = model.JobStatus(st)
	j.SysCode = sysCode.String
	j.Expression = expr.String
	j.Interval = interval.Int64
	j.CreatedAt = time.UnixMilli(created)
	j.UpdatedAt = time.UnixMilli(updated)
	return j, nil
}

func affectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return &PersistenceError{Op: op, Err: ErrNotFound}
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
