package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry, breaker and HTTP mapping decisions.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindUnavailable     Kind = "unavailable"
	KindUnknown         Kind = "unknown"
	KindEventProcessing Kind = "event_processing"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrUnknown         = &Error{Kind: KindUnknown}
	ErrEventProcessing = &Error{Kind: KindEventProcessing}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewInvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewUnavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

func NewUnknown(message string, err error) *Error {
	return &Error{Kind: KindUnknown, Message: message, Err: err}
}

func NewEventProcessing(format string, args ...any) *Error {
	return &Error{Kind: KindEventProcessing, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is an infrastructure failure worth another attempt.
// NotFound and InvalidInput are definitive answers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindUnavailable, KindUnknown:
		return true
	default:
		return false
	}
}

// ValidateProductID rejects identifiers below 1.
func ValidateProductID(id int) error {
	if id < 1 {
		return NewInvalidInput("Invalid productId: %d", id)
	}
	return nil
}
