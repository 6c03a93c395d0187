//go:build linux

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/linuxkit/virtsock/blob/master/pkg/vsock/vsock_linux.go
//

package vsocket

import "golang.org/x/sys/unix"

// platformSyscalls implements [Syscalls] using AF_VSOCK.
//
// Besides VSOCK descriptors, Recv, Send, Shutdown and Close work with
// any connected stream socket (e.g., a unix.Socketpair).
type platformSyscalls struct{}

var _ Syscalls = platformSyscalls{}

// Socket implements [Syscalls].
func (platformSyscalls) Socket() (int, error) {
	return unix.Socket(unix.AF_VSOCK, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
}

// SetBlocking implements [Syscalls].
func (platformSyscalls) SetBlocking(fd int) error {
	return unix.SetNonblock(fd, false)
}

// Bind implements [Syscalls].
func (platformSyscalls) Bind(fd int, addr Addr) error {
	return unix.Bind(fd, &unix.SockaddrVM{CID: addr.CID, Port: addr.Port})
}

// Listen implements [Syscalls].
func (platformSyscalls) Listen(fd int, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Accept implements [Syscalls].
func (platformSyscalls) Accept(fd int) (int, Addr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Addr{}, err
	}
	var peer Addr
	if vm, ok := sa.(*unix.SockaddrVM); ok {
		peer = Addr{CID: vm.CID, Port: vm.Port}
	}
	return nfd, peer, nil
}

// Connect implements [Syscalls].
func (platformSyscalls) Connect(fd int, addr Addr) error {
	return unix.Connect(fd, &unix.SockaddrVM{CID: addr.CID, Port: addr.Port})
}

// Recv implements [Syscalls].
func (platformSyscalls) Recv(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Send implements [Syscalls].
func (platformSyscalls) Send(fd int, buf []byte) (int, error) {
	n, err := unix.SendmsgN(fd, buf, nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Shutdown implements [Syscalls].
func (platformSyscalls) Shutdown(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}

// Close implements [Syscalls].
func (platformSyscalls) Close(fd int) error {
	return unix.Close(fd)
}
