package models

import (
	"errors"
	"fmt"
)

// Domain specific error kinds. Every error returned by a service wraps exactly
// one of these so the HTTP layer can map it without inspecting messages.
var (
	ErrNotFound           = errors.New("requested item not found")
	ErrConflict           = errors.New("item already exists or conflict")
	ErrUnauthenticated    = errors.New("authentication required or invalid credentials")
	ErrForbidden          = errors.New("action forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidBatch       = errors.New("invalid pin batch")
	ErrHeterogeneousBatch = errors.New("heterogeneous pin batch")
	ErrIncompleteReorder  = errors.New("incomplete stop reorder")
	ErrUpstream           = errors.New("upstream service unavailable")
)

// AppError carries a stable kind, a message that is safe to show to callers and,
// optionally, the predicate or field that failed.
type AppError struct {
	Kind      error
	Message   string
	Predicate string
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newAppError(kind error, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

func NewValidationError(field, msg string) *AppError {
	return &AppError{Kind: ErrValidation, Message: msg, Predicate: field}
}

func NewNotFoundError(msg string) *AppError { return newAppError(ErrNotFound, msg) }

func NewForbiddenError(msg string) *AppError { return newAppError(ErrForbidden, msg) }

func NewConflictError(msg string) *AppError { return newAppError(ErrConflict, msg) }

func NewInvalidBatchError(msg string) *AppError { return newAppError(ErrInvalidBatch, msg) }

// NewHeterogeneousBatchError names the homogeneity predicate that failed ("city" or "day").
func NewHeterogeneousBatchError(predicate, msg string) *AppError {
	return &AppError{Kind: ErrHeterogeneousBatch, Message: msg, Predicate: predicate}
}

func NewIncompleteReorderError(msg string) *AppError { return newAppError(ErrIncompleteReorder, msg) }

func NewUpstreamError(msg string, err error) *AppError {
	return &AppError{Kind: ErrUpstream, Message: msg, Err: err}
}

// KindOf returns the sentinel kind carried by err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrNotFound, ErrForbidden, ErrInvalidBatch, ErrHeterogeneousBatch,
		ErrIncompleteReorder, ErrConflict, ErrUpstream, ErrUnauthenticated,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// PublicMessage returns the caller-safe message for err. Unclassified errors
// never leak their text.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if kind := KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal server error"
}
