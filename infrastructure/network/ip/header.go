// Package ip validates raw IP packets crossing the tunnel boundary.
package ip

import (
	"fmt"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Version returns the IP version of packet from its first nibble.
func Version(packet []byte) (int, error) {
	if len(packet) < 1 {
		return 0, fmt.Errorf("invalid packet: empty header")
	}
	ver := int(packet[0] >> 4)
	if ver != 4 && ver != 6 {
		return 0, fmt.Errorf("invalid IP version: %d", ver)
	}
	return ver, nil
}

// Validate checks that packet starts with a structurally sound IPv4 or IPv6
// header. It guards the tunnel write path against decrypted garbage.
func Validate(packet []byte) error {
	ver, err := Version(packet)
	if err != nil {
		return err
	}
	switch ver {
	case 4:
		if len(packet) < ipv4.HeaderLen {
			return fmt.Errorf("invalid IPv4 header: too small (%d bytes)", len(packet))
		}
		ihl := int(packet[0]&0x0F) * 4
		if ihl < ipv4.HeaderLen {
			return fmt.Errorf("invalid IPv4 header: IHL=%d (<%d)", ihl, ipv4.HeaderLen)
		}
		if len(packet) < ihl {
			return fmt.Errorf("invalid IPv4 header: truncated (len=%d < IHL=%d)", len(packet), ihl)
		}
	case 6:
		if len(packet) < ipv6.HeaderLen {
			return fmt.Errorf("invalid IPv6 header: too small (%d bytes)", len(packet))
		}
	}
	return nil
}
