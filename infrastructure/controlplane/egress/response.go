package egress

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"ppn/application/ppn"
)

type wireResponse struct {
	PpnDataplane struct {
		UserPrivateIP []struct {
			Ipv4Range string `json:"ipv4_range"`
			Ipv6Range string `json:"ipv6_range"`
		} `json:"user_private_ip"`
		EgressPointSockAddr   []string `json:"egress_point_sock_addr"`
		EgressPointPublicValue string  `json:"egress_point_public_value"`
		ServerNonce           string   `json:"server_nonce"`
		UplinkSPI             uint32   `json:"uplink_spi"`
		Expiry                string   `json:"expiry"`
	} `json:"ppn_dataplane"`
}

// DecodeResponse parses the provisioning response body into an immutable
// egress descriptor.
func DecodeResponse(jsonBody []byte) (*ppn.EgressDescriptor, error) {
	var wire wireResponse
	if err := json.Unmarshal(jsonBody, &wire); err != nil {
		return nil, fmt.Errorf("decode egress response: %w", err)
	}
	plane := wire.PpnDataplane

	descriptor := &ppn.EgressDescriptor{UplinkSPI: plane.UplinkSPI}

	for _, raw := range plane.EgressPointSockAddr {
		addr, err := netip.ParseAddrPort(raw)
		if err != nil {
			return nil, fmt.Errorf("egress sock addr %q: %w", raw, err)
		}
		descriptor.SockAddrs = append(descriptor.SockAddrs, addr)
	}
	if len(descriptor.SockAddrs) == 0 {
		return nil, fmt.Errorf("egress response carries no socket addresses")
	}

	for _, private := range plane.UserPrivateIP {
		for _, raw := range []string{private.Ipv4Range, private.Ipv6Range} {
			if raw == "" {
				continue
			}
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("private range %q: %w", raw, err)
			}
			descriptor.PrivateRanges = append(descriptor.PrivateRanges, prefix)
		}
	}

	var err error
	if descriptor.PublicValue, err = base64.StdEncoding.DecodeString(plane.EgressPointPublicValue); err != nil {
		return nil, fmt.Errorf("egress public value: %w", err)
	}
	if descriptor.ServerNonce, err = base64.StdEncoding.DecodeString(plane.ServerNonce); err != nil {
		return nil, fmt.Errorf("server nonce: %w", err)
	}
	if plane.Expiry != "" {
		if descriptor.Expiry, err = time.Parse(time.RFC3339, plane.Expiry); err != nil {
			return nil, fmt.Errorf("expiry: %w", err)
		}
	}
	return descriptor, nil
}
