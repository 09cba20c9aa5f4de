package session

import "ppn/domain/status"

// DebugSnapshot is a point-in-time view of the session for diagnostics and
// telemetry. Counters reflect the whole session lifetime.
type DebugSnapshot struct {
	State            string `json:"state"`
	Status           string `json:"status"`
	ActiveNetwork    string `json:"active_network,omitempty"`
	SuccessfulRekeys int    `json:"successful_rekeys"`
	NetworkSwitches  int    `json:"network_switches"`
}

// GetDebugInfo snapshots the session. It only takes the mutex, never the
// looper, so it is safe to call from a UI or debug endpoint at any time.
func (s *Session) GetDebugInfo() DebugSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := DebugSnapshot{
		State:            s.state.String(),
		Status:           status.Text(s.latestErr),
		SuccessfulRekeys: s.successfulRekeys,
		NetworkSwitches:  s.networkSwitches,
	}
	if s.activeNetwork != nil {
		snapshot.ActiveNetwork = s.activeNetwork.Type.String()
	}
	return snapshot
}
