package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotInProgress is returned by state-changing writes whose attempt is no
// longer in_progress.
var ErrNotInProgress = errors.New("attempt is not in progress")

// WriteError is a failed write to the durable store. Uncertain is set when the
// failure happened at commit or the context ended mid-flight, so the write may
// or may not have been persisted.
type WriteError struct {
	Op        string
	Uncertain bool
	Err       error
}

func (e *WriteError) Error() string {
	if e.Uncertain {
		return fmt.Sprintf("%s: outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is a store I/O failure rather than a
// domain outcome.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

func passThrough(err error) bool {
	return errors.Is(err, ErrNotInProgress) || errors.Is(err, gorm.ErrRecordNotFound)
}

// write runs fn in a transaction and classifies failures into WriteErrors.
func write(ctx context.Context, db *gorm.DB, op string, fn func(tx *gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return &WriteError{Op: op, Uncertain: ctx.Err() != nil, Err: tx.Error}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		if passThrough(err) {
			return err
		}
		return &WriteError{Op: op, Uncertain: ctx.Err() != nil, Err: err}
	}
	if err := tx.Commit().Error; err != nil {
		return &WriteError{Op: op, Uncertain: true, Err: err}
	}
	return nil
}
