// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// Here a span is the lifetime of a single [*Handle], from construction to
// close. Attach it to the logger using [*slog.Logger.With] so that all the
// log entries of a handle, including those emitted by its background
// loops, can be correlated.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
