package ppn

import (
	"net/netip"

	"ppn/domain/network"
)

// TunnelSpec describes the OS tunnel interface to create: the assigned
// private ranges plus the resolver addresses routed into the tunnel.
type TunnelSpec struct {
	TunnelAddresses []netip.Prefix
	DNSAddresses    []netip.Prefix
	IsMetered       bool
}

// DefaultDNSAddresses returns the standard resolver set pushed into every
// tunnel: IPv4 resolvers first, then IPv6.
func DefaultDNSAddresses() []netip.Prefix {
	return []netip.Prefix{
		netip.MustParsePrefix("8.8.8.8/32"),
		netip.MustParsePrefix("8.8.8.4/32"),
		netip.MustParsePrefix("2001:4860:4860::8888/128"),
		netip.MustParsePrefix("2001:4860:4860::8844/128"),
	}
}

// VpnService is the platform boundary: it creates the OS tunnel interface and
// per-network sockets that bypass the VPN. Both calls transfer ownership of
// the returned pipe to the caller.
type VpnService interface {
	CreateTunnel(spec TunnelSpec) (PacketPipe, error)

	// CreateProtectedNetworkSocket creates a socket bound to the given
	// network path. networkInfo is nil when no network is available.
	CreateProtectedNetworkSocket(networkInfo *network.NetworkInfo) (PacketPipe, error)
}
