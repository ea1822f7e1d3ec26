package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence error")
	ErrSink           = errors.New("dispatch failed")
	ErrMalformedBatch = errors.New("malformed batch")
)

var (
	// ErrNoCurrentGroup is returned when an operation needs a group context and none is set.
	ErrNoCurrentGroup = fmt.Errorf("no current group: %w", ErrNotFound)
	// ErrGroupNotFound indicates the group id was never registered.
	ErrGroupNotFound = fmt.Errorf("group %w", ErrNotFound)
	// ErrTopicNotFound indicates the topic name is not mapped in the group.
	ErrTopicNotFound = fmt.Errorf("topic %w", ErrNotFound)

	// ErrMissingOptions is returned when a record carries no options.
	ErrMissingOptions = NewValidationError("options", "no options in record")
	// ErrMissingCorrectOption is returned when a record has no correct_option.
	ErrMissingCorrectOption = NewValidationError("correct_option", "correct option is not set")
)

// ValidationError describes a malformed field of a record or argument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a durable storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SinkError wraps a failure reported by the dispatch sink.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("dispatch: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool { return target == ErrSink }

// Kind is a stable label for an error class, used in summaries and logs.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindPersistence    Kind = "persistence"
	KindSink           Kind = "sink"
	KindMalformedBatch Kind = "malformed_batch"
	KindCanceled       Kind = "canceled"
	KindInternal       Kind = "internal"
)

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrMalformedBatch):
		return KindMalformedBatch
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrSink):
		return KindSink
	default:
		return KindInternal
	}
}
