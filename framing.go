// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the size of the little-endian length prefix of a frame.
const FrameHeaderSize = 8

// ErrFrameTooLarge indicates a frame exceeding the configured maximum size.
var ErrFrameTooLarge = errors.New("vsocket: frame too large")

// AppendFrame appends the framed payload to dst and returns the extended buffer.
//
// A frame is the payload length as an 8-byte little-endian unsigned
// integer followed by the payload itself. For example, "hi" is framed
// as 02 00 00 00 00 00 00 00 68 69.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes the length prefix and then the payload to w.
//
// The wire format is the one produced by [AppendFrame].
func WriteFrame(w io.Writer, payload []byte) error {
	var header [FrameHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) <= 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads exactly one frame from r and returns its payload.
//
// Returns [io.EOF] when r ends cleanly before the first header byte and
// [io.ErrUnexpectedEOF] when r ends in the middle of a frame. Returns an
// error wrapping [ErrFrameTooLarge] when the advertised length exceeds maxSize.
func ReadFrame(r io.Reader, maxSize uint64) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint64(header[:])
	if size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, maxSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// SendWithLength sends the payload as a single frame (see [WriteFrame]).
//
// It behaves like [*Handle.Write] except that it commits the handle to
// [ModeFramed]. Returns an error wrapping [ErrInvalidState] if the handle
// already committed to [ModeRaw].
func (h *Handle) SendWithLength(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := h.beginWrite("sendWithLength", ModeFramed); err != nil {
		return err
	}
	return WriteFrame(streamWriter{h}, data)
}

// StartRecvWithLength starts a receive loop reading frames.
//
// Each complete frame is delivered as a single [EventData]. A clean end
// of stream on a frame boundary emits [EventEnd]; a truncated frame, a
// frame larger than [Config.MaxFrameSize] or an OS error emits
// [EventError]. Either terminates the loop.
//
// Returns an error wrapping [ErrInvalidState] under the same conditions
// as [*Handle.StartRecv] or if the handle already committed to [ModeRaw].
func (h *Handle) StartRecvWithLength() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.startRecvLocked("startRecvWithLength", ModeFramed); err != nil {
		return err
	}
	go h.recvFramesLoop()
	return nil
}

func (h *Handle) recvFramesLoop() {
	reader := streamReader{h}
	for {
		payload, err := ReadFrame(reader, h.maxFrameSize)
		switch {
		case err == nil:
			if h.emit(Event{Kind: EventData, Data: payload}) != nil {
				return
			}

		case errors.Is(err, io.EOF):
			h.emit(Event{Kind: EventEnd})
			return

		case errors.Is(err, errDescriptorClosed):
			return

		default:
			h.emit(Event{Kind: EventError, Err: err})
			return
		}
	}
}
