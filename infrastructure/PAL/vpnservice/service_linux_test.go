//go:build linux

package vpnservice

import (
	"net/netip"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"ppn/application/ppn"
)

type fakeCommander struct {
	commands [][]string
	err      error
	output   []byte
}

func (c *fakeCommander) CombinedOutput(name string, args ...string) ([]byte, error) {
	c.commands = append(c.commands, append([]string{name}, args...))
	return c.output, c.err
}

func (c *fakeCommander) Output(name string, args ...string) ([]byte, error) {
	return c.CombinedOutput(name, args...)
}

func (c *fakeCommander) joined() []string {
	var out []string
	for _, command := range c.commands {
		out = append(out, strings.Join(command, " "))
	}
	return out
}

func TestConfigureTunnelAssignsRangesAndBringsLinkUp(t *testing.T) {
	commander := &fakeCommander{}
	service := NewService(commander)

	spec := ppn.TunnelSpec{
		TunnelAddresses: []netip.Prefix{
			netip.MustParsePrefix("10.2.2.123/32"),
			netip.MustParsePrefix("fec2:0001::3/64"),
		},
		DNSAddresses: ppn.DefaultDNSAddresses(),
	}
	if err := service.configureTunnel("ppn0", spec); err != nil {
		t.Fatalf("configureTunnel: %v", err)
	}

	got := commander.joined()
	want := []string{
		"ip addr add 10.2.2.123/32 dev ppn0",
		"ip addr add fec2:1::3/64 dev ppn0",
		"ip link set dev ppn0 up",
		"resolvectl dns ppn0 8.8.8.8 8.8.8.4 2001:4860:4860::8888 2001:4860:4860::8844",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestConfigureTunnelReportsAddressFailure(t *testing.T) {
	commander := &fakeCommander{err: errExec, output: []byte("RTNETLINK answers: File exists")}
	service := NewService(commander)

	err := service.configureTunnel("ppn0", ppn.TunnelSpec{
		TunnelAddresses: []netip.Prefix{netip.MustParsePrefix("10.2.2.123/32")},
	})
	if err == nil {
		t.Fatalf("expected error from failing ip command")
	}
	if !strings.Contains(err.Error(), "File exists") {
		t.Fatalf("expected command output in error, got %v", err)
	}
}

var errExec = unix.EPERM

func TestSockaddrForPicksFamily(t *testing.T) {
	family, sa := sockaddrFor(netip.MustParseAddrPort("64.9.240.165:2153"))
	if family != unix.AF_INET {
		t.Fatalf("expected AF_INET, got %d", family)
	}
	inet4, ok := sa.(*unix.SockaddrInet4)
	if !ok || inet4.Port != 2153 {
		t.Fatalf("expected inet4 sockaddr with port 2153, got %#v", sa)
	}

	family, sa = sockaddrFor(netip.MustParseAddrPort("[2604:ca00:f001:4::5]:2153"))
	if family != unix.AF_INET6 {
		t.Fatalf("expected AF_INET6, got %d", family)
	}
	if _, ok := sa.(*unix.SockaddrInet6); !ok {
		t.Fatalf("expected inet6 sockaddr, got %#v", sa)
	}

	// IPv4-mapped addresses use a plain IPv4 socket.
	family, _ = sockaddrFor(netip.MustParseAddrPort("[::ffff:64.9.240.165]:2153"))
	if family != unix.AF_INET {
		t.Fatalf("expected AF_INET for mapped address, got %d", family)
	}
}

func TestProtectedSocketRejectsUseBeforeConnect(t *testing.T) {
	socket := newProtectedSocket(defaultFwmark)
	if _, err := socket.Read(make([]byte, 16)); err == nil {
		t.Fatalf("expected read before connect to fail")
	}
	if _, err := socket.Fd(); err == nil {
		t.Fatalf("expected fd before connect to fail")
	}
	if err := socket.Close(); err != nil {
		t.Fatalf("expected close of unconnected socket to succeed, got %v", err)
	}
}
