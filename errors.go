// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrTransportCreateFailed indicates that we could not allocate or adopt a socket.
	ErrTransportCreateFailed = errors.New("vsocket: transport create failed")

	// ErrTransportOpFailed indicates that an OS-level socket operation failed.
	ErrTransportOpFailed = errors.New("vsocket: transport operation failed")

	// ErrInvalidState indicates an operation attempted outside its allowed state.
	ErrInvalidState = errors.New("vsocket: invalid state")

	// ErrSinkReleased indicates a dispatch attempted after [*Sink.Unref].
	ErrSinkReleased = errors.New("vsocket: sink released")
)

// OpError is the error returned when an OS-level operation fails.
//
// Use [errors.Is] with [ErrTransportCreateFailed] or [ErrTransportOpFailed]
// to check the category and with a [syscall.Errno] value (e.g., ECONNREFUSED)
// to check the underlying cause.
type OpError struct {
	// Op is the name of the failed operation (e.g., "connect", "send").
	Op string

	// Kind is either [ErrTransportCreateFailed] or [ErrTransportOpFailed].
	Kind error

	// Err is the underlying error, usually a [syscall.Errno].
	Err error
}

func newOpError(op string, err error) *OpError {
	return &OpError{Op: op, Kind: ErrTransportOpFailed, Err: err}
}

func newCreateError(op string, err error) *OpError {
	return &OpError{Op: op, Kind: ErrTransportCreateFailed, Err: err}
}

// Error implements error.
func (e *OpError) Error() string {
	return fmt.Sprintf("vsocket: %s failed: %s", e.Op, e.Err.Error())
}

// Unwrap returns both the category and the underlying error.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Errno returns the underlying [syscall.Errno], if any.
func (e *OpError) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

func newStateError(op string, state State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, state)
}
