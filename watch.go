// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import "context"

// WatchContext arranges for the handle to be destroyed when the context
// is done (cancelled or deadline exceeded).
//
// Since blocking socket calls cannot be interrupted otherwise, this is the
// way to bind a context to a handle, e.g., for responsive ^C handling
// using [signal.NotifyContext]: [*Handle.Destroy] shuts the socket down,
// which wakes up the receive loop, and then closes it.
//
// The returned function unregisters the watcher and reports whether it
// did so before the handle was destroyed. Calling it when done with the
// handle avoids leaking the watcher if the context is never done.
func WatchContext(ctx context.Context, h *Handle) (stop func() bool) {
	return context.AfterFunc(ctx, h.Destroy)
}
