// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import "sync"

// descriptor reference counts the users of an OS file descriptor.
//
// Each syscall runs between acquire and release. Once close is called,
// acquire fails and the descriptor is released by whoever drops the last
// reference, so a loop blocked in a syscall never sees its descriptor
// number recycled for an unrelated socket.
type descriptor struct {
	// fd is the OS descriptor.
	fd int

	// sys performs the final close.
	sys Syscalls

	// onLateClose is invoked with the close result when the close is
	// performed by the last release rather than by close.
	onLateClose func(err error)

	// mu protects the fields below.
	mu sync.Mutex

	// refs counts the in-flight syscalls.
	refs int

	// closing is true once close was called.
	closing bool
}

func newDescriptor(fd int, sys Syscalls, onLateClose func(err error)) *descriptor {
	return &descriptor{
		fd:          fd,
		sys:         sys,
		onLateClose: onLateClose,
		mu:          sync.Mutex{},
		refs:        0,
		closing:     false,
	}
}

// acquire returns the fd and true unless the descriptor is closing.
func (d *descriptor) acquire() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return -1, false
	}
	d.refs++
	return d.fd, true
}

// release drops a reference obtained with acquire.
func (d *descriptor) release() {
	d.mu.Lock()
	d.refs--
	last := d.closing && d.refs == 0
	d.mu.Unlock()
	if last {
		d.onLateClose(d.sys.Close(d.fd))
	}
}

// close marks the descriptor as closing and closes the fd right away when
// nobody is using it. It returns whether the close was deferred.
func (d *descriptor) close() (deferred bool, err error) {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return false, nil
	}
	d.closing = true
	busy := d.refs > 0
	d.mu.Unlock()
	if busy {
		return true, nil
	}
	return false, d.sys.Close(d.fd)
}
