//go:build linux

package vpnservice

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"
)

// protectedSocket is a UDP socket whose traffic bypasses the tunnel via its
// fwmark. The socket is created lazily on Connect, once the address family
// is known.
type protectedSocket struct {
	fwmark int

	mu sync.Mutex
	fd int
}

func newProtectedSocket(fwmark int) *protectedSocket {
	return &protectedSocket{fwmark: fwmark, fd: -1}
}

// Connect dials addr with a fresh marked socket, replacing any previous one.
func (p *protectedSocket) Connect(addr netip.AddrPort) error {
	family, sa := sockaddrFor(addr)
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, p.fwmark); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("set fwmark: %w", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("connect %v: %w", addr, err)
	}

	p.mu.Lock()
	old := p.fd
	p.fd = fd
	p.mu.Unlock()
	if old >= 0 {
		_ = unix.Close(old)
	}
	return nil
}

// sockaddrFor picks the socket family and kernel address for addr.
// IPv4-mapped addresses use a plain IPv4 socket.
func sockaddrFor(addr netip.AddrPort) (int, unix.Sockaddr) {
	ip := addr.Addr()
	if ip.Is4() || ip.Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(addr.Port())}
		sa.Addr = ip.Unmap().As4()
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port())}
	sa.Addr = ip.As16()
	return unix.AF_INET6, sa
}

func (p *protectedSocket) Read(b []byte) (int, error) {
	fd, err := p.connectedFd()
	if err != nil {
		return 0, err
	}
	return unix.Read(fd, b)
}

func (p *protectedSocket) Write(b []byte) (int, error) {
	fd, err := p.connectedFd()
	if err != nil {
		return 0, err
	}
	return unix.Write(fd, b)
}

func (p *protectedSocket) Close() error {
	p.mu.Lock()
	fd := p.fd
	p.fd = -1
	p.mu.Unlock()
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func (p *protectedSocket) Fd() (int, error) {
	return p.connectedFd()
}

func (p *protectedSocket) connectedFd() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return 0, errors.New("socket not connected")
	}
	return p.fd, nil
}
