package model

import (
	"fmt"
	"time"
)

// RunStatus is the outcome column of schedule_status_log.
type RunStatus int

const (
	RunRunning   RunStatus = 1
	RunCompleted RunStatus = 2
	RunFailed    RunStatus = 3
)

func (s RunStatus) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return fmt.Sprintf("run_status(%d)", int(s))
	}
}

// Terminal reports whether no further update is expected.
func (s RunStatus) Terminal() bool { return s == RunCompleted || s == RunFailed }

// EventStatus is a scheduler lifecycle notification recorded in schedule_event_log.
type EventStatus int

const (
	EventStart   EventStatus = 1
	EventDone    EventStatus = 2
	EventStop    EventStatus = 3
	EventRemoved EventStatus = 4
)

func (s EventStatus) String() string {
	switch s {
	case EventStart:
		return "start"
	case EventDone:
		return "done"
	case EventStop:
		return "stop"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("event(%d)", int(s))
	}
}

// ScheduleStatusLog is one execution attempt.
type ScheduleStatusLog struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	UUID      string    `json:"uuid"`
	Error     *string   `json:"error,omitempty"`
	Cost      int64     `json:"cost"` // ms
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ScheduleEventLog struct {
	ID        int64       `json:"id"`
	JobID     int64       `json:"job_id"`
	UUID      string      `json:"uuid"`
	Status    EventStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
