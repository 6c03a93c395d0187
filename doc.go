// SPDX-License-Identifier: GPL-3.0-or-later

// Package vsocket provides event-driven VSOCK stream sockets.
//
// # Core Abstraction
//
// The package is built around [*Handle], which owns exactly one socket
// descriptor, and [*Sink], which delivers the handle's notifications:
//
//	type Callback func(ev Event)
//
// Every operation either fails synchronously, before any background work
// starts, or returns immediately and reports its outcome later as an
// [Event] passed to the [Callback]. Events are produced by background
// goroutines but the [*Sink] serializes them, so the Callback is never
// invoked concurrently and observes the events of each loop in order.
//
// # Available Operations
//
// Server side:
//   - [*Handle.Listen]: binds to [CIDAny], listens and runs the accept loop,
//     emitting [EventConnection] for each inbound connection
//   - [NewHandleFromDescriptor]: takes ownership of an accepted descriptor
//
// Client side:
//   - [*Handle.Connect]: connects with up to [MaxConnectAttempts] attempts
//     and exponential backoff, emitting [EventConnect] or a single [EventError]
//
// Data transfer (raw byte stream, the primary mode):
//   - [*Handle.StartRecv]: runs the receive loop emitting [EventData] and
//     then exactly one [EventEnd] or [EventError]
//   - [*Handle.Write], [*Handle.WriteText]: blocking, complete writes
//
// Data transfer (length-prefixed frames, the legacy mode):
//   - [*Handle.SendWithLength], [*Handle.StartRecvWithLength]
//   - [AppendFrame], [WriteFrame], [ReadFrame]: the codec over any stream
//
// A handle commits to one of the two modes with its first I/O operation;
// mixing them fails with [ErrInvalidState].
//
// Lifecycle:
//   - [*Handle.Shutdown] (and its alias [*Handle.End]): emits [EventShutdown]
//   - [*Handle.Close]: emits [EventClose] and releases the sink
//   - [*Handle.Destroy]: shutdown followed by close, ignoring errors
//   - [WatchContext]: destroys the handle when a context is done
//
// # Concurrency Model
//
// Each long-running loop (accept, receive, connect retries) runs on its own
// goroutine issuing literal blocking syscalls. Nothing is cancellable except
// by tearing down the handle: shutting down the socket wakes up a blocked
// receive, and closing it makes every loop stop. A descriptor is never
// recycled while a loop is still using it: the OS-level close is deferred
// until the last in-flight syscall returns.
//
// # Errors
//
// Synchronous failures wrap one of [ErrTransportCreateFailed],
// [ErrTransportOpFailed] or [ErrInvalidState]. OS failures are reported as
// [*OpError], which also wraps the underlying [syscall.Errno]. Failures
// inside background loops are only ever delivered as [EventError].
// Dispatching through a released sink fails with [ErrSinkReleased].
//
// # Observability
//
// All operations support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Lifecycle events
// (*Start/*Done pairs for socket, listen, accept, connect, shutdown and
// close) are emitted at [slog.LevelInfo]; per-I/O events (recv, send) at
// [slog.LevelDebug]. Use [NewSpanID] with [*slog.Logger.With] to correlate
// the entries of a given handle.
//
// # Testing
//
// The OS layer is abstracted by [Syscalls], configured through [Config].
// The default implementation uses AF_VSOCK on Linux via golang.org/x/sys/unix.
package vsocket
