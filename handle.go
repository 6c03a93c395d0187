// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"
)

// errDescriptorClosed is returned internally by I/O helpers when the
// descriptor was closed while a loop was still running.
var errDescriptorClosed = errors.New("vsocket: descriptor closed")

// Handle owns exactly one VSOCK stream socket and tracks its lifecycle.
//
// A Handle delivers every outcome of its background work (accepted
// connections, connect results, received data, end of stream, errors)
// as an [Event] to the [Callback] passed at construction, through a
// dedicated [*Sink] that the Handle owns.
//
// The lifecycle is [StateInitialized] → [StateShutDown] → [StateClosed]
// and never goes backwards. Use [*Handle.Destroy] to tear the handle down:
// it shuts down and then closes the socket, which also stops any loop
// blocked on the descriptor.
//
// All methods are safe for concurrent use.
//
// Construct using [NewHandle] or [NewHandleFromDescriptor].
type Handle struct {
	// desc is the owned descriptor.
	desc *descriptor

	// errClassifier classifies errors for structured logging.
	errClassifier ErrClassifier

	// logger is the [SLogger] to use.
	logger SLogger

	// maxFrameSize bounds the framed receive loop.
	maxFrameSize uint64

	// sink delivers the events.
	sink *Sink

	// sleep waits between connect attempts.
	sleep func(d time.Duration)

	// sys performs the OS calls.
	sys Syscalls

	// timeNow returns the current time.
	timeNow func() time.Time

	// writeMu serializes writers so that payloads never interleave.
	writeMu sync.Mutex

	// mu protects the fields below.
	mu sync.Mutex

	// state is the lifecycle state.
	state State

	// mode is the committed wire convention.
	mode Mode

	// connecting is true once Connect was called.
	connecting bool

	// listening is true once Listen succeeded.
	listening bool

	// receiving is true once a receive loop was started.
	receiving bool
}

// NewHandle allocates a new VSOCK stream socket and returns a [*Handle] owning it.
//
// The cfg argument contains the common configuration.
//
// The callback argument receives all the events of the handle.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// Returns an error wrapping [ErrTransportCreateFailed] if the socket cannot be allocated.
func NewHandle(cfg *Config, callback Callback, logger SLogger) (*Handle, error) {
	t0 := cfg.TimeNow()
	logger.Info(
		"socketStart",
		slog.String("protocol", "vsock"),
		slog.Time("t", t0),
	)

	fd, err := cfg.Syscalls.Socket()

	logger.Info(
		"socketDone",
		slog.Any("err", err),
		slog.String("errClass", cfg.ErrClassifier.Classify(err)),
		slog.Int("fd", fd),
		slog.String("protocol", "vsock"),
		slog.Time("t0", t0),
		slog.Time("t", cfg.TimeNow()),
	)

	if err != nil {
		return nil, newCreateError("socket", err)
	}
	return newHandle(cfg, fd, callback, logger), nil
}

// NewHandleFromDescriptor returns a [*Handle] adopting an existing descriptor.
//
// Use this to take ownership of the descriptor carried by an
// [EventConnection]. The descriptor is switched to blocking mode. On
// failure the descriptor is closed, since ownership passed to this call.
//
// Returns an error wrapping [ErrTransportCreateFailed] on failure.
func NewHandleFromDescriptor(cfg *Config, fd int, callback Callback, logger SLogger) (*Handle, error) {
	if fd < 0 {
		return nil, newCreateError("adopt", syscall.EBADF)
	}
	if err := cfg.Syscalls.SetBlocking(fd); err != nil {
		cfg.Syscalls.Close(fd)
		return nil, newCreateError("adopt", err)
	}
	return newHandle(cfg, fd, callback, logger), nil
}

func newHandle(cfg *Config, fd int, callback Callback, logger SLogger) *Handle {
	h := &Handle{
		desc:          nil, // set below
		errClassifier: cfg.ErrClassifier,
		logger:        logger,
		maxFrameSize:  cfg.MaxFrameSize,
		sink:          NewSink(callback),
		sleep:         cfg.Sleep,
		sys:           cfg.Syscalls,
		timeNow:       cfg.TimeNow,
		writeMu:       sync.Mutex{},
		mu:            sync.Mutex{},
		state:         StateInitialized,
		mode:          ModeUnset,
		connecting:    false,
		listening:     false,
		receiving:     false,
	}
	h.desc = newDescriptor(fd, cfg.Syscalls, func(err error) {
		h.logInfoDone("lateCloseDone", fd, h.timeNow(), err)
	})
	return h
}

// Descriptor returns the OS descriptor owned by the handle.
//
// The descriptor must not be used after [*Handle.Close].
func (h *Handle) Descriptor() int {
	return h.desc.fd
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Mode returns the wire convention the handle committed to.
func (h *Handle) Mode() Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// Done returns a channel closed after [*Handle.Close] once every
// pending event, including [EventClose], has been delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.sink.Done()
}

// Shutdown shuts down both directions of the socket and emits [EventShutdown].
//
// Calling Shutdown when the handle is already shut down or closed is a
// no-op returning nil. An OS failure returns an error wrapping
// [ErrTransportOpFailed] and leaves the state unchanged.
func (h *Handle) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state >= StateShutDown {
		return nil
	}

	fd, ok := h.desc.acquire()
	if !ok {
		return newStateError("shutdown", h.state)
	}
	defer h.desc.release()

	t0 := h.timeNow()
	h.logInfoStart("shutdownStart", fd, t0)
	err := h.sys.Shutdown(fd)
	h.logInfoDone("shutdownDone", fd, t0, err)
	if err != nil {
		return newOpError("shutdown", err)
	}

	h.state = h.state.advance(StateShutDown)
	h.emit(Event{Kind: EventShutdown})
	return nil
}

// End is an alias for [*Handle.Shutdown].
func (h *Handle) End() error {
	return h.Shutdown()
}

// Close releases the descriptor, emits [EventClose] and releases the sink.
//
// Calling Close more than once is a no-op returning nil. If a background
// loop is still inside a syscall using the descriptor, the OS-level close
// happens when that syscall returns. A failing OS-level close returns an
// error wrapping [ErrTransportOpFailed]; the handle is closed regardless.
//
// Close does not shut the socket down first, so a receive loop blocked
// waiting for data keeps waiting; use [*Handle.Destroy] for a full teardown.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state >= StateClosed {
		return nil
	}
	h.state = h.state.advance(StateClosed)

	fd := h.desc.fd
	t0 := h.timeNow()
	h.logInfoStart("closeStart", fd, t0)
	deferred, err := h.desc.close()
	h.logInfoDone("closeDone", fd, t0, err, slog.Bool("deferred", deferred))

	h.emit(Event{Kind: EventClose})
	h.sink.Unref()

	if err != nil {
		return newOpError("close", err)
	}
	return nil
}

// Destroy tears the handle down by calling [*Handle.Shutdown] and then
// [*Handle.Close], logging and otherwise ignoring their errors.
//
// Destroy guarantees the descriptor is not leaked and is safe to call
// concurrently with background loops blocked on the descriptor.
func (h *Handle) Destroy() {
	if err := h.Shutdown(); err != nil {
		h.logger.Info("destroyShutdownFailed", slog.Any("err", err), slog.Int("fd", h.desc.fd))
	}
	if err := h.Close(); err != nil {
		h.logger.Info("destroyCloseFailed", slog.Any("err", err), slog.Int("fd", h.desc.fd))
	}
}

// emit dispatches the event and logs when it is dropped because the
// sink was already released.
func (h *Handle) emit(ev Event) error {
	err := h.sink.Dispatch(ev)
	if err != nil {
		h.logger.Debug(
			"eventDropped",
			slog.String("event", ev.Kind.String()),
			slog.Int("fd", h.desc.fd),
			slog.Time("t", h.timeNow()),
		)
	}
	return err
}

// checkIOLocked returns an error if the handle cannot start an I/O
// operation in the given mode. The caller must hold h.mu.
func (h *Handle) checkIOLocked(op string, mode Mode) error {
	if h.state != StateInitialized {
		return newStateError(op, h.state)
	}
	if h.listening {
		return fmt.Errorf("%w: cannot %s on a listening socket", ErrInvalidState, op)
	}
	if h.mode != ModeUnset && h.mode != mode {
		return fmt.Errorf("%w: cannot %s in %s mode", ErrInvalidState, op, h.mode)
	}
	return nil
}

func (h *Handle) logInfoStart(msg string, fd int, t0 time.Time, extra ...any) {
	h.logger.Info(msg, h.startArgs(fd, t0, extra)...)
}

func (h *Handle) logInfoDone(msg string, fd int, t0 time.Time, err error, extra ...any) {
	h.logger.Info(msg, h.doneArgs(fd, t0, err, extra)...)
}

func (h *Handle) logDebugStart(msg string, fd int, t0 time.Time, extra ...any) {
	h.logger.Debug(msg, h.startArgs(fd, t0, extra)...)
}

func (h *Handle) logDebugDone(msg string, fd int, t0 time.Time, err error, extra ...any) {
	h.logger.Debug(msg, h.doneArgs(fd, t0, err, extra)...)
}

func (h *Handle) startArgs(fd int, t0 time.Time, extra []any) []any {
	args := []any{
		slog.Int("fd", fd),
		slog.String("protocol", "vsock"),
		slog.Time("t", t0),
	}
	return append(args, extra...)
}

func (h *Handle) doneArgs(fd int, t0 time.Time, err error, extra []any) []any {
	args := []any{
		slog.Any("err", err),
		slog.String("errClass", h.errClassifier.Classify(err)),
		slog.Int("fd", fd),
		slog.String("protocol", "vsock"),
		slog.Time("t0", t0),
		slog.Time("t", h.timeNow()),
	}
	return append(args, extra...)
}
