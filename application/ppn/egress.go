package ppn

import (
	"net/netip"
	"time"
)

// EgressDescriptor is the negotiated tunnel endpoint. It is immutable once
// produced and replaced wholesale on rekey; the session hands read-only
// copies to the datapath at call time.
type EgressDescriptor struct {
	// SockAddrs lists the egress socket addresses in backend preference
	// order; it may contain both an IPv6 and an IPv4 entry for the same
	// logical endpoint.
	SockAddrs []netip.AddrPort
	// PrivateRanges are the tunnel IP ranges assigned to this client.
	PrivateRanges []netip.Prefix
	// PublicValue is the egress node's public key material.
	PublicValue []byte
	// ServerNonce salts the session key derivation.
	ServerNonce []byte
	// UplinkSPI correlates uplink traffic with this session's keys.
	UplinkSPI uint32
	Expiry    time.Time
}

// Ipv6SockAddr returns the first IPv6 egress address, if any.
func (d *EgressDescriptor) Ipv6SockAddr() (netip.AddrPort, bool) {
	return d.sockAddr(func(a netip.Addr) bool { return a.Is6() && !a.Is4In6() })
}

// Ipv4SockAddr returns the first IPv4 egress address, if any.
func (d *EgressDescriptor) Ipv4SockAddr() (netip.AddrPort, bool) {
	return d.sockAddr(func(a netip.Addr) bool { return a.Is4() || a.Is4In6() })
}

func (d *EgressDescriptor) sockAddr(match func(netip.Addr) bool) (netip.AddrPort, bool) {
	for _, ap := range d.SockAddrs {
		if match(ap.Addr()) {
			return ap, true
		}
	}
	return netip.AddrPort{}, false
}

// PpnRequestParams parameterizes the direct-IPsec egress negotiation variant.
type PpnRequestParams struct {
	AuthResult       *AuthResult
	ClientPublicKey  []byte
	ClientNonce      []byte
	DownlinkSPI      uint32
	Suite            CipherSuite
	IsRekey          bool
	PreviousUplinkGW string
}

// EgressNotification receives the asynchronous outcome of an egress
// negotiation, on the session's looper.
type EgressNotification interface {
	EgressAvailable(isRekey bool)
	EgressUnavailable(err error)
}

// EgressManager negotiates a tunnel endpoint with the provisioning backend.
// One of the two Get variants is used, selected by configuration; both report
// through the registered EgressNotification or via a synchronous error.
type EgressManager interface {
	GetEgressNodeForBridge(authResult *AuthResult) error
	GetEgressNodeForPpnIpSec(params PpnRequestParams) error

	// GetEgressSessionDetails returns the current descriptor, or an error if
	// no negotiation completed yet.
	GetEgressSessionDetails() (*EgressDescriptor, error)

	RegisterNotificationHandler(notification EgressNotification)
}
