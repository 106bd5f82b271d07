package engine

import (
	"errors"
	"fmt"

	"blinkworks/internal/domain"
	"blinkworks/internal/repo"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrValidation        = errors.New("validation failed")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrNotAvailable      = errors.New("not available")
	// ErrImmutable is returned when touching an approved delivery.
	ErrImmutable = errors.New("delivery approved and immutable")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e NotFoundError) Unwrap() error { return repo.ErrNotFound }

// TransitionError is a rejected lifecycle event. Reason names the failing precondition.
type TransitionError struct {
	TaskID string
	Event  Event
	From   domain.TaskStatus
	Reason string
	Err    error
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot %s task %s in status %s: %s", e.Event, e.TaskID, e.From, e.Reason)
}

func (e TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

func (e TransitionError) Unwrap() error { return e.Err }

// ValidationError is raised before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string { return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason) }

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// StoreError wraps persistence and blob failures.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e StoreError) Unwrap() error { return e.Err }

func reject(t domain.Task, ev Event, reason string, cause error) error {
	if cause == nil && reason == "" {
		reason = fmt.Sprintf("no %s transition from %s", ev, t.Status)
	}
	if reason == "" {
		reason = cause.Error()
	}
	return TransitionError{TaskID: t.ID, Event: ev, From: t.Status, Reason: reason, Err: cause}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se StoreError
	if errors.As(err, &se) {
		return err
	}
	return StoreError{Op: op, Err: err}
}
