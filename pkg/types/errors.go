package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any error produced by deckfeed.
var (
	// ErrConfiguration indicates missing or invalid settings (e.g. no browser).
	ErrConfiguration = errors.New("configuration error")

	// ErrInitialization indicates the browser session could not be brought up.
	ErrInitialization = errors.New("initialization error")

	// ErrNotLoggedIn indicates the dashboard root container was missing.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoUsableColumn indicates no home timeline column matched a known account.
	ErrNoUsableColumn = errors.New("no usable column")

	// ErrState indicates an operation on a destroyed or uninitialized object, or
	// an invalid state transition.
	ErrState = errors.New("invalid state")

	// ErrProtocol indicates a remote command failed during steady-state scraping.
	ErrProtocol = errors.New("protocol error")
)

// Error carries an error kind, the operation that failed and an optional cause.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError creates an Error of the given kind with a user-facing message.
func NewError(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError creates an Error of the given kind around cause.
func WrapError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// StateErrorf is shorthand for a formatted ErrState error.
func StateErrorf(op, format string, args ...any) *Error {
	return NewError(ErrState, op, fmt.Sprintf(format, args...))
}

// IsStartupError reports whether err is one of the failures that abort
// dashboard startup and are reported to the user.
func IsStartupError(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInitialization) ||
		errors.Is(err, ErrNotLoggedIn) ||
		errors.Is(err, ErrNoUsableColumn)
}

// UserMessage returns the message to show the user for err. Typed errors with
// a message use it verbatim; anything else falls back to err.Error().
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
