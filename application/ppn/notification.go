package ppn

import "ppn/domain/network"

// SessionNotification is the application-facing life-cycle sink. Callbacks
// arrive on the session's looper; implementations must not call back into
// the session synchronously.
type SessionNotification interface {
	// ControlPlaneConnected fires once egress provisioning succeeds.
	ControlPlaneConnected()
	// ControlPlaneDisconnected fires on a session-fatal control-plane
	// failure that is not permanent.
	ControlPlaneDisconnected(err error)
	// PermanentFailure fires on a policy/permission denial; the session must
	// be discarded.
	PermanentFailure(err error)
	DatapathConnected()
	// DatapathDisconnected fires when the datapath gave up, after the
	// reattempt budget is exhausted or on a permanent datapath failure.
	DatapathDisconnected(networkInfo network.NetworkInfo, err error)
	StatusUpdated()
}
