// SPDX-License-Identifier: GPL-3.0-or-later

// Package oserr classifies OS errors returned by blocking socket calls.
package oserr

import "errors"

// IsInterrupted returns true when the call was interrupted by a signal
// and the caller should retry it immediately.
func IsInterrupted(err error) bool {
	return errors.Is(err, errEINTR)
}

// IsWouldBlock returns true when the call could not complete without
// blocking (EAGAIN or EWOULDBLOCK).
func IsWouldBlock(err error) bool {
	return errors.Is(err, errEAGAIN) || errors.Is(err, errEWOULDBLOCK)
}
