// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

// EventKind identifies the kind of an [Event].
type EventKind int

const (
	// EventConnection reports a connection accepted by [*Handle.Listen].
	EventConnection EventKind = iota + 1

	// EventConnect reports that [*Handle.Connect] succeeded.
	EventConnect

	// EventData carries bytes read by the receive loop.
	EventData

	// EventEnd reports that the peer closed its write side.
	EventEnd

	// EventShutdown reports that [*Handle.Shutdown] succeeded.
	EventShutdown

	// EventClose reports that [*Handle.Close] released the descriptor.
	EventClose

	// EventError reports a failure inside a background loop.
	EventError
)

// String returns the event tag.
func (k EventKind) String() string {
	switch k {
	case EventConnection:
		return "connection"
	case EventConnect:
		return "connect"
	case EventData:
		return "data"
	case EventEnd:
		return "end"
	case EventShutdown:
		return "shutdown"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "invalid"
	}
}

// Event is a notification delivered through a [*Sink].
//
// Only the fields relevant to Kind are set.
type Event struct {
	// Kind is the event kind.
	Kind EventKind

	// Descriptor is the accepted descriptor for [EventConnection]. Ownership
	// passes to whoever builds a handle from it using [NewHandleFromDescriptor].
	Descriptor int

	// Peer is the remote address for [EventConnection].
	Peer Addr

	// Data is a private copy of the received bytes for [EventData].
	Data []byte

	// Err is the failure for [EventError].
	Err error
}
