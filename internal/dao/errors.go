package dao

import (
	"errors"
	"fmt"

	"opsadmin/internal/storage"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
	// ErrJobOnline rejects deleting a job that has not been taken Offline first.
	ErrJobOnline = errors.New("job must be offline before delete")
)

// PersistenceError wraps a failed Dao operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "dao " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// mapErr classifies driver errors into the package sentinels and tags them with op.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case storage.IsNoRows(err):
		err = ErrNotFound
	case storage.IsUniqueViolation(err):
		err = fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return &PersistenceError{Op: op, Err: err}
}
