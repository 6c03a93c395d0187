//go:build !linux

// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import "errors"

// platformSyscalls is a [Syscalls] that always fails with [errors.ErrUnsupported].
type platformSyscalls struct{}

var _ Syscalls = platformSyscalls{}

func (platformSyscalls) Socket() (int, error) { return -1, errors.ErrUnsupported }
func (platformSyscalls) SetBlocking(fd int) error { return errors.ErrUnsupported }
func (platformSyscalls) Bind(fd int, addr Addr) error { return errors.ErrUnsupported }
func (platformSyscalls) Listen(fd int, backlog int) error { return errors.ErrUnsupported }
func (platformSyscalls) Connect(fd int, addr Addr) error { return errors.ErrUnsupported }
func (platformSyscalls) Recv(fd int, b []byte) (int, error) { return 0, errors.ErrUnsupported }
func (platformSyscalls) Send(fd int, b []byte) (int, error) { return 0, errors.ErrUnsupported }
func (platformSyscalls) Shutdown(fd int) error { return errors.ErrUnsupported }
func (platformSyscalls) Close(fd int) error { return errors.ErrUnsupported }

func (platformSyscalls) Accept(fd int) (int, Addr, error) {
	return -1, Addr{}, errors.ErrUnsupported
}
