// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

// State is the lifecycle state of a [*Handle].
//
// States are totally ordered and a handle's state never decreases.
type State int

const (
	// StateInitialized is the state of a freshly created or adopted handle.
	StateInitialized State = iota + 1

	// StateShutDown means both directions of the socket were shut down.
	StateShutDown

	// StateClosed means the descriptor was released.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateShutDown:
		return "shutDown"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// advance returns the next state, which is never lower than the current one.
func (s State) advance(to State) State {
	if to > s {
		return to
	}
	return s
}

// Mode is the wire convention a [*Handle] committed to.
type Mode int

const (
	// ModeUnset means no I/O operation has committed the handle yet.
	ModeUnset Mode = iota

	// ModeRaw treats the socket as a raw byte stream.
	ModeRaw

	// ModeFramed uses the length-prefixed framing (see [WriteFrame]).
	ModeFramed
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeUnset:
		return "unset"
	case ModeRaw:
		return "raw"
	case ModeFramed:
		return "framed"
	default:
		return "invalid"
	}
}
