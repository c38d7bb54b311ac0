// Package model holds the persisted scheduler records.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Source tells whether a job body is compiled in (System) or database-defined (User).
type Source int

const (
	SourceSystem Source = 1
	SourceUser   Source = 2
)

func (s Source) String() string {
	switch s {
	case SourceSystem:
		return "system"
	case SourceUser:
		return "user"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

type JobType int

const (
	JobTypeCron     JobType = 1
	JobTypeInterval JobType = 2
)

func (t JobType) String() string {
	switch t {
	case JobTypeCron:
		return "cron"
	case JobTypeInterval:
		return "interval"
	default:
		return fmt.Sprintf("job_type(%d)", int(t))
	}
}

// JobStatus is switched by operators. Offline keeps a job scheduled but mutes it.
type JobStatus int

const (
	JobOnline  JobStatus = 1
	JobOffline JobStatus = 2
)

func (s JobStatus) String() string {
	switch s {
	case JobOnline:
		return "online"
	case JobOffline:
		return "offline"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ScheduleJob is one row of schedule_job.
type ScheduleJob struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Source     Source    `json:"source"`
	JobType    JobType   `json:"job_type"`
	SysCode    string    `json:"sys_code,omitempty"`
	Expression string    `json:"expression,omitempty"`
	Interval   int64     `json:"interval,omitempty"` // seconds
	Status     JobStatus `json:"status"`
	Desc       string    `json:"desc,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (j ScheduleJob) Offline() bool { return j.Status == JobOffline }

// Validate checks the row-level invariants: sys_code iff System, and exactly one of
// expression/interval matching job_type.
func (j ScheduleJob) Validate() error {
	var errs []error
	if strings.TrimSpace(j.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch j.Source {
	case SourceSystem:
		if strings.TrimSpace(j.SysCode) == "" {
			errs = append(errs, errors.New("sys_code is required for system jobs"))
		}
	case SourceUser:
		if j.SysCode != "" {
			errs = append(errs, errors.New("sys_code must be empty for user jobs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %d", int(j.Source)))
	}
	switch j.JobType {
	case JobTypeCron:
		if strings.TrimSpace(j.Expression) == "" {
			errs = append(errs, errors.New("expression is required for cron jobs"))
		}
		if j.Interval != 0 {
			errs = append(errs, errors.New("interval must be empty for cron jobs"))
		}
	case JobTypeInterval:
		if j.Interval <= 0 {
			errs = append(errs, errors.New("interval must be > 0 for interval jobs"))
		}
		if j.Expression != "" {
			errs = append(errs, errors.New("expression must be empty for interval jobs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown job_type %d", int(j.JobType)))
	}
	if j.Status != JobOnline && j.Status != JobOffline {
		errs = append(errs, fmt.Errorf("unknown status %d", int(j.Status)))
	}
	return errors.Join(errs...)
}
