// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"io"
	"log/slog"

	"github.com/bassosimone/vsocket/internal/oserr"
)

// Write sends the whole payload, blocking until it is sent or an
// unrecoverable error occurs.
//
// Partial sends are continued and signal interruptions are retried. On
// failure the peer may have received any prefix of the payload and the
// error wraps [ErrTransportOpFailed] and the OS error.
//
// Concurrent calls are serialized, so payloads never interleave.
//
// Returns an error wrapping [ErrInvalidState], without sending anything,
// if the handle is not [StateInitialized], is listening, or committed
// to [ModeFramed].
func (h *Handle) Write(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.beginWrite("write", ModeRaw); err != nil {
		return err
	}
	return h.sendAll(data)
}

// WriteText is like [*Handle.Write] but sends the UTF-8 bytes of a string.
func (h *Handle) WriteText(text string) error {
	return h.Write([]byte(text))
}

// beginWrite checks the write preconditions and commits the mode.
func (h *Handle) beginWrite(op string, mode Mode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkIOLocked(op, mode); err != nil {
		return err
	}
	h.mode = mode
	return nil
}

// sendAll loops until data is fully sent. The caller must hold h.writeMu.
func (h *Handle) sendAll(data []byte) error {
	fd, ok := h.desc.acquire()
	if !ok {
		return newStateError("send", StateClosed)
	}
	defer h.desc.release()

	for sent := 0; sent < len(data); {
		t0 := h.timeNow()
		h.logDebugStart("sendStart", fd, t0, slog.Int("ioBufferSize", len(data)-sent))

		count, err := h.sys.Send(fd, data[sent:])

		h.logDebugDone("sendDone", fd, t0, err, slog.Int("ioBytesCount", count))

		if err != nil {
			if oserr.IsInterrupted(err) {
				continue
			}
			return newOpError("send", err)
		}
		if count <= 0 {
			return newOpError("send", io.ErrShortWrite)
		}
		sent += count
	}
	return nil
}

// streamWriter adapts the send path to [io.Writer] for the framed writes.
// The caller must hold h.writeMu.
type streamWriter struct {
	h *Handle
}

var _ io.Writer = streamWriter{}

// Write implements [io.Writer].
func (w streamWriter) Write(data []byte) (int, error) {
	if err := w.h.sendAll(data); err != nil {
		return 0, err
	}
	return len(data), nil
}
