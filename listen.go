// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"fmt"
	"log/slog"

	"github.com/bassosimone/vsocket/internal/oserr"
)

// Listen binds the socket to the given port on [CIDAny], starts listening
// with a backlog of [ListenBacklog] and runs the accept loop.
//
// Each accepted connection is delivered as an [EventConnection] whose
// descriptor is owned by the receiver of the event. Accept failures are
// delivered as [EventError] and do not stop the loop, which only ends
// when the handle is torn down (shut down or closed).
//
// Bind and listen failures are returned synchronously wrapping
// [ErrTransportOpFailed]. Returns an error wrapping [ErrInvalidState] if
// the handle is not [StateInitialized], is already listening, is
// connecting, or has committed to an I/O mode.
func (h *Handle) Listen(port uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateInitialized {
		return newStateError("listen", h.state)
	}
	if h.listening || h.connecting || h.mode != ModeUnset {
		return fmt.Errorf("%w: socket already in use", ErrInvalidState)
	}

	fd, ok := h.desc.acquire()
	if !ok {
		return newStateError("listen", h.state)
	}
	defer h.desc.release()

	addr := Addr{CID: CIDAny, Port: port}
	t0 := h.timeNow()
	h.logInfoStart(
		"listenStart", fd, t0,
		slog.Int("backlog", ListenBacklog),
		slog.String("localAddr", addr.String()),
	)

	op, err := "bind", h.sys.Bind(fd, addr)
	if err == nil {
		op, err = "listen", h.sys.Listen(fd, ListenBacklog)
	}

	h.logInfoDone(
		"listenDone", fd, t0, err,
		slog.Int("backlog", ListenBacklog),
		slog.String("localAddr", addr.String()),
	)
	if err != nil {
		return newOpError(op, err)
	}

	h.listening = true
	go h.acceptLoop(addr)
	return nil
}

func (h *Handle) acceptLoop(addr Addr) {
	for {
		fd, ok := h.desc.acquire()
		if !ok {
			return
		}

		t0 := h.timeNow()
		h.logInfoStart("acceptStart", fd, t0, slog.String("localAddr", addr.String()))
		nfd, peer, err := h.sys.Accept(fd)
		h.logInfoDone(
			"acceptDone", fd, t0, err,
			slog.Int("acceptedFd", nfd),
			slog.String("localAddr", addr.String()),
			slog.String("remoteAddr", peer.String()),
		)
		h.desc.release()

		if err != nil {
			if oserr.IsInterrupted(err) {
				continue
			}
			if h.State() != StateInitialized {
				// Teardown in progress: the failure is the teardown itself.
				return
			}
			if h.emit(Event{Kind: EventError, Err: newOpError("accept", err)}) != nil {
				return
			}
			continue
		}

		if h.emit(Event{Kind: EventConnection, Descriptor: nfd, Peer: peer}) != nil {
			// Nobody is going to own the accepted descriptor.
			h.sys.Close(nfd)
			return
		}
	}
}
