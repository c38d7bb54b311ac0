package timer

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJob      = errors.New("job already scheduled")
	ErrJobNotConfigured  = errors.New("job has no schedule")
	ErrSchedulerShutdown = errors.New("scheduler is shut down")
	ErrInvalidSchedule   = errors.New("invalid schedule")
)

// SchedulerError is returned by scheduling operations and job construction.
type SchedulerError struct {
	Op  string
	ID  string // run identifier, when known
	Err error
}

func (e *SchedulerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("scheduler %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("scheduler %s: %v", e.Op, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

// ParseError reports a stored value (uuid, expression, interval) that cannot be used.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
