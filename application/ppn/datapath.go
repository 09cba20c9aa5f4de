package ppn

import (
	"net/netip"

	"ppn/domain/network"
)

// CipherSuite selects the AEAD used by the packet transform.
type CipherSuite int

const (
	SuiteChaCha20Poly1305 CipherSuite = iota
	SuiteAes256Gcm
)

func (s CipherSuite) String() string {
	if s == SuiteAes256Gcm {
		return "aes256-gcm"
	}
	return "chacha20-poly1305"
}

// ParseSuite maps a configured suite name to its CipherSuite; unknown names
// fall back to the default suite.
func ParseSuite(name string) CipherSuite {
	if name == "aes256-gcm" {
		return SuiteAes256Gcm
	}
	return SuiteChaCha20Poly1305
}

// TransformParams carries the derived packet-transform keys for one key epoch.
type TransformParams struct {
	UplinkKey   []byte
	DownlinkKey []byte
	Suite       CipherSuite
}

// DatapathNotification receives asynchronous datapath events. networkFd
// identifies the protected socket the failure was observed on.
type DatapathNotification interface {
	DatapathEstablished()
	DatapathFailed(err error, networkFd int)
	DatapathPermanentFailure(err error)
}

// Datapath owns the encrypted packet tunnel. All methods are invoked from the
// session only; events flow back through the registered notification handler,
// which the datapath may call from any of its worker goroutines, so handler
// implementations must be safe to enter concurrently.
type Datapath interface {
	// Start arms the datapath with the negotiated egress parameters and a
	// freshly built transform. No packets flow until SwitchNetwork.
	Start(egress *EgressDescriptor, transform TransformParams) error

	// SwitchNetwork repoints the datapath at a new network path. addrs is
	// the ordered list of egress addresses to try; networkInfo is nil when
	// no network is available and the datapath must pause gracefully.
	// attemptBudget bounds connection attempts per address.
	SwitchNetwork(spi uint32, addrs []netip.AddrPort, networkInfo *network.NetworkInfo,
		tunnel PacketPipe, socket PacketPipe, attemptBudget int) error

	// Rekey swaps the transform keys without restarting the tunnel.
	Rekey(uplinkKey, downlinkKey []byte) error

	Stop()

	RegisterNotificationHandler(notification DatapathNotification)
}
