//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/connect.go
//

package vsocket

import (
	"errors"
	"fmt"
	"log/slog"
)

// Connect starts connecting the socket to the given context id and port.
//
// Connect returns immediately and the outcome is delivered
// asynchronously. The connection is attempted up to [MaxConnectAttempts]
// times, sleeping [ConnectBackoff] after each failed attempt. The first
// successful attempt emits [EventConnect]; if all attempts fail, a single
// [EventError] wrapping the last failure is emitted instead.
//
// Returns an error wrapping [ErrInvalidState] if the handle is not
// [StateInitialized], is listening, or Connect was already called.
func (h *Handle) Connect(cid, port uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateInitialized {
		return newStateError("connect", h.state)
	}
	if h.connecting {
		return fmt.Errorf("%w: connect already called", ErrInvalidState)
	}
	if h.listening {
		return fmt.Errorf("%w: cannot connect a listening socket", ErrInvalidState)
	}
	h.connecting = true
	go h.connectLoop(Addr{CID: cid, Port: port})
	return nil
}

func (h *Handle) connectLoop(addr Addr) {
	var lastErr error
	for attempt := 0; attempt < MaxConnectAttempts; attempt++ {
		err := h.connectOnce(addr, attempt)
		if err == nil {
			h.emit(Event{Kind: EventConnect})
			return
		}
		if errors.Is(err, errDescriptorClosed) {
			return
		}
		lastErr = err

		delay := ConnectBackoff(attempt)
		h.logger.Info(
			"connectBackoff",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Int("fd", h.desc.fd),
			slog.String("remoteAddr", addr.String()),
			slog.Time("t", h.timeNow()),
		)
		h.sleep(delay)
	}
	h.emit(Event{Kind: EventError, Err: newOpError("connect", lastErr)})
}

func (h *Handle) connectOnce(addr Addr, attempt int) error {
	fd, ok := h.desc.acquire()
	if !ok {
		return errDescriptorClosed
	}
	defer h.desc.release()

	t0 := h.timeNow()
	h.logInfoStart(
		"connectStart", fd, t0,
		slog.Int("attempt", attempt),
		slog.String("remoteAddr", addr.String()),
	)

	err := h.sys.Connect(fd, addr)

	h.logInfoDone(
		"connectDone", fd, t0, err,
		slog.Int("attempt", attempt),
		slog.String("remoteAddr", addr.String()),
	)
	return err
}
