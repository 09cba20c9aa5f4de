package settings

import "fmt"

// Dataplane selects the egress-negotiation protocol variant. It changes
// which provisioning request the session issues, not the shape of the
// session state machine.
type Dataplane string

const (
	DataplaneBridge Dataplane = "bridge"
	DataplaneIpSec  Dataplane = "ipsec"
)

func (d Dataplane) Validate() error {
	switch d {
	case DataplaneBridge, DataplaneIpSec:
		return nil
	default:
		return fmt.Errorf("unknown dataplane %q", string(d))
	}
}
