//go:build !unix

// SPDX-License-Identifier: GPL-3.0-or-later

package oserr

import "syscall"

const (
	errEAGAIN      = syscall.EAGAIN
	errEWOULDBLOCK = syscall.EWOULDBLOCK
	errEINTR       = syscall.EINTR
)
