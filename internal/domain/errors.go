package domain

import (
	"errors"
	"fmt"
)

// ErrQueryExecution is the single error kind surfaced by query execution.
// Invalid parameters never produce it; backing-store failures and unknown
// entity types do.
var ErrQueryExecution = errors.New("query execution failed")

// ErrEntityTypeNotFound is returned when no schema is registered for an
// entity type. It also matches ErrQueryExecution.
var ErrEntityTypeNotFound = fmt.Errorf("%w: entity type not found", ErrQueryExecution)

// ExecutionError wraps a backing-store failure as ErrQueryExecution while
// keeping the cause reachable through errors.Is/As.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrQueryExecution, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrQueryExecution, e.Err}
}

// NewExecutionError wraps err unless it already is an ErrQueryExecution.
func NewExecutionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQueryExecution) {
		return err
	}
	return &ExecutionError{Op: op, Err: err}
}
