// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

// Syscalls abstracts the OS socket calls used by a [*Handle].
//
// By making [*Handle] depend on an abstract implementation we allow for
// unit testing without a VSOCK-capable kernel and for alternative transports.
//
// All calls except Socket, Shutdown and Close may block the calling
// goroutine. Implementations must return the raw OS error (e.g., a
// [syscall.Errno]) so that callers can classify interruptions.
type Syscalls interface {
	// Socket allocates a new stream socket.
	Socket() (int, error)

	// SetBlocking puts the descriptor in blocking mode.
	SetBlocking(fd int) error

	// Bind binds the descriptor to the given local address.
	Bind(fd int, addr Addr) error

	// Listen marks the descriptor as listening with the given backlog.
	Listen(fd int, backlog int) error

	// Accept waits for and returns the next inbound connection.
	Accept(fd int) (int, Addr, error)

	// Connect connects the descriptor to the given remote address.
	Connect(fd int, addr Addr) error

	// Recv reads into buf and returns the number of bytes read.
	Recv(fd int, buf []byte) (int, error)

	// Send writes buf and returns the number of bytes written.
	Send(fd int, buf []byte) (int, error)

	// Shutdown shuts down both directions of the descriptor.
	Shutdown(fd int) error

	// Close releases the descriptor.
	Close(fd int) error
}

// DefaultSyscalls returns the [Syscalls] for the current platform.
//
// On Linux this uses AF_VSOCK stream sockets. On other platforms every
// call fails with [errors.ErrUnsupported].
func DefaultSyscalls() Syscalls {
	return platformSyscalls{}
}
