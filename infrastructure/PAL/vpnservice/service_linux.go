//go:build linux

// Package vpnservice is the platform boundary: it creates the TUN interface
// the tunnel terminates on and the protected sockets that carry the
// encapsulated traffic outside the tunnel.
package vpnservice

import (
	"fmt"
	"strings"

	"golang.zx2c4.com/wireguard/tun"

	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/infrastructure/PAL"
)

const (
	defaultMTU = 1500
	deviceName = "ppn0"
	// defaultFwmark marks protected-socket traffic so the routing policy
	// keeps it off the tunnel.
	defaultFwmark = 0x8f41
)

type Service struct {
	commander PAL.Commander
	mtu       int
	fwmark    int
}

func NewService(commander PAL.Commander) *Service {
	return &Service{
		commander: commander,
		mtu:       defaultMTU,
		fwmark:    defaultFwmark,
	}
}

func (s *Service) CreateTunnel(spec ppn.TunnelSpec) (ppn.PacketPipe, error) {
	device, err := tun.CreateTUN(deviceName, s.mtu)
	if err != nil {
		return nil, fmt.Errorf("create tun: %w", err)
	}
	name, err := device.Name()
	if err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("tun name: %w", err)
	}
	if err := s.configureTunnel(name, spec); err != nil {
		_ = device.Close()
		return nil, err
	}
	return newTunAdapter(device), nil
}

// configureTunnel assigns the negotiated ranges and brings the link up with
// iproute2, the way the rest of the host stack manages interfaces.
func (s *Service) configureTunnel(name string, spec ppn.TunnelSpec) error {
	for _, prefix := range spec.TunnelAddresses {
		output, err := s.commander.CombinedOutput("ip", "addr", "add", prefix.String(), "dev", name)
		if err != nil {
			return fmt.Errorf("failed to assign %v to %v: %v, output: %s", prefix, name, err, output)
		}
	}
	output, err := s.commander.CombinedOutput("ip", "link", "set", "dev", name, "up")
	if err != nil {
		return fmt.Errorf("failed to bring %v up: %v, output: %s", name, err, output)
	}

	// Resolver setup is best effort: hosts without systemd-resolved manage
	// DNS themselves.
	if len(spec.DNSAddresses) > 0 {
		args := []string{"dns", name}
		for _, prefix := range spec.DNSAddresses {
			args = append(args, prefix.Addr().String())
		}
		if output, err := s.commander.CombinedOutput("resolvectl", args...); err != nil {
			_ = output
		}
	}
	return nil
}

// CreateProtectedNetworkSocket returns a socket that dials the egress when
// the datapath connects it. Linux has no per-network handle; the fwmark
// keeps its traffic out of the tunnel for every network.
func (s *Service) CreateProtectedNetworkSocket(networkInfo *network.NetworkInfo) (ppn.PacketPipe, error) {
	return newProtectedSocket(s.fwmark), nil
}

// DeleteTunnel removes a leftover device from a previous run.
func (s *Service) DeleteTunnel() error {
	output, err := s.commander.CombinedOutput("ip", "link", "delete", deviceName)
	if err != nil && !strings.Contains(string(output), "Cannot find device") {
		return fmt.Errorf("failed to delete %v: %v, output: %s", deviceName, err, output)
	}
	return nil
}

var _ ppn.VpnService = (*Service)(nil)
