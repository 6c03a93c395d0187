// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bassosimone/vsocket/internal/oserr"
)

// StartRecv starts the receive loop treating the socket as a raw byte stream.
//
// The loop reads into a [ReadBufferSize] buffer and emits an [EventData]
// for each successful read, in stream order. When the peer closes its
// write side it emits [EventEnd] and stops. On a non-transient error it
// emits [EventError] and stops. Exactly one of [EventEnd] or [EventError]
// terminates the loop. Signal interruptions and would-block conditions
// are retried silently.
//
// Returns an error wrapping [ErrInvalidState] if the handle is not
// [StateInitialized], a receive loop was already started, the handle is
// listening, or the handle committed to [ModeFramed].
func (h *Handle) StartRecv() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.startRecvLocked("startRecv", ModeRaw); err != nil {
		return err
	}
	go h.recvLoop()
	return nil
}

// startRecvLocked checks preconditions and commits the mode. The
// caller must hold h.mu.
func (h *Handle) startRecvLocked(op string, mode Mode) error {
	if err := h.checkIOLocked(op, mode); err != nil {
		return err
	}
	if h.receiving {
		return fmt.Errorf("%w: receive loop already started", ErrInvalidState)
	}
	h.receiving = true
	h.mode = mode
	return nil
}

func (h *Handle) recvLoop() {
	buf := make([]byte, ReadBufferSize)
	for {
		count, err := h.recvOnce(buf)
		switch {
		case err == nil && count > 0:
			if h.emit(Event{Kind: EventData, Data: bytes.Clone(buf[:count])}) != nil {
				return
			}

		case err == nil:
			h.emit(Event{Kind: EventEnd})
			return

		case errors.Is(err, errDescriptorClosed):
			return

		case oserr.IsWouldBlock(err):
			continue

		default:
			h.emit(Event{Kind: EventError, Err: newOpError("recv", err)})
			return
		}
	}
}

// recvOnce performs a single read, retrying on signal interruption.
func (h *Handle) recvOnce(buf []byte) (int, error) {
	fd, ok := h.desc.acquire()
	if !ok {
		return 0, errDescriptorClosed
	}
	defer h.desc.release()

	for {
		t0 := h.timeNow()
		h.logDebugStart("recvStart", fd, t0, slog.Int("ioBufferSize", len(buf)))

		count, err := h.sys.Recv(fd, buf)

		h.logDebugDone("recvDone", fd, t0, err, slog.Int("ioBytesCount", count))

		if err != nil && oserr.IsInterrupted(err) {
			continue
		}
		return count, err
	}
}

// streamReader adapts the receive path to [io.Reader] for the framed loop.
type streamReader struct {
	h *Handle
}

var _ io.Reader = streamReader{}

// Read implements [io.Reader].
//
// Would-block conditions are retried and the end of stream maps to [io.EOF].
func (r streamReader) Read(buf []byte) (int, error) {
	if len(buf) <= 0 {
		return 0, nil
	}
	for {
		count, err := r.h.recvOnce(buf)
		switch {
		case err == nil && count > 0:
			return count, nil
		case err == nil:
			return 0, io.EOF
		case errors.Is(err, errDescriptorClosed):
			return 0, err
		case oserr.IsWouldBlock(err):
			continue
		default:
			return 0, newOpError("recv", err)
		}
	}
}
