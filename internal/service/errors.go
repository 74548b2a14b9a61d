package service

import (
	"errors"
	"fmt"

	"github.com/lshigami/examprep/internal/scoring"
)

var (
	ErrInvalidState         = errors.New("invalid attempt state")
	ErrDuplicateScoringRule = errors.New("exam already has a scoring rule")
	ErrScoringRuleNotFound  = errors.New("scoring rule not found")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrTestNotFound         = errors.New("test not found")
	ErrNoQuestions          = errors.New("no questions available")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidAnswer        = scoring.ErrInvalidAnswer
	ErrStaleResult          = errors.New("cached result is older than the attempt")
	ErrResultNotPending     = errors.New("no pending result for attempt")
	ErrCompletionContended  = errors.New("attempt kept changing while completing")
)

// StateError reports an operation the attempt's current status does not allow.
// It matches ErrInvalidState.
type StateError struct {
	AttemptID uint
	Op        string
	Status    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s attempt %d: attempt is %s", e.Op, e.AttemptID, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// ResultPendingError means a scored result could not be confirmed in the
// durable store and is held in the local cache for recovery.
type ResultPendingError struct {
	AttemptID uint
	// Uncertain is set when the store may have applied the write anyway.
	Uncertain bool
	Err       error
}

func (e *ResultPendingError) Error() string {
	return fmt.Sprintf("result of attempt %d is pending recovery: %v", e.AttemptID, e.Err)
}

func (e *ResultPendingError) Unwrap() error { return e.Err }

// statusPending is reported by StateError while a cached result awaits recovery.
const statusPending = "awaiting result recovery"
