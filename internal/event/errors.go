package event

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandler is returned when a registration has no function,
	// does not name a concrete event type, or uses a tier it may not use.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrNoHandlersFound is returned when a handler set is empty.
	ErrNoHandlersFound = errors.New("no handlers found")

	// ErrNotRegistered is returned when unregistering an unknown set.
	ErrNotRegistered = errors.New("handler set not registered")

	// ErrHandlerPanic is matched by errors.Is for a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerError wraps the failure of one handler.
type HandlerError struct {
	Handler string
	Event   string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s on %s: %v", e.Handler, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError carries a recovered panic value.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
