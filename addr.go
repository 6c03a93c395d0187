//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/linuxkit/virtsock/blob/master/pkg/vsock/vsock.go
//

package vsocket

import (
	"fmt"
	"net"
)

const (
	// CIDAny is the wildcard context id used when binding a listener.
	CIDAny = 0xFFFFFFFF

	// CIDHypervisor is the reserved context id of the hypervisor.
	CIDHypervisor = 0

	// CIDLocal is the context id for local (loopback) communication.
	CIDLocal = 1

	// CIDHost is the reserved context id of the host system.
	CIDHost = 2
)

// Addr is a VSOCK endpoint identified by a context id and a port.
//
// The zero value is the hypervisor at port zero.
type Addr struct {
	// CID is the context id.
	CID uint32

	// Port is the port.
	Port uint32
}

var _ net.Addr = Addr{}

// Network implements [net.Addr].
func (a Addr) Network() string {
	return "vsock"
}

// String implements [net.Addr].
//
// The format is "<cid>:<port>" using decimal numbers.
func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.CID, a.Port)
}
