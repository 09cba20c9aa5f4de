package session

// State is the session's position in the connect sequence.
//
// Allowed transitions:
//
//	Initialized --Start--> EgressAuthenticating
//	EgressAuthenticating --AuthSuccessful--> EgressAuthenticated
//	EgressAuthenticated --EgressAvailable--> Connecting
//	Connecting --datapath started--> Connected
//
// Any control-plane failure moves to SessionError, or to PermanentError when
// the failure is a policy/permission denial. PermanentError is terminal;
// SessionError still accepts network and lifecycle calls but the session is
// finished for end-to-end purposes and is never restarted in place.
type State int

const (
	StateInitialized State = iota
	StateEgressAuthenticating
	StateEgressAuthenticated
	StateConnecting
	StateConnected
	StateSessionError
	StatePermanentError
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateEgressAuthenticating:
		return "EgressAuthenticating"
	case StateEgressAuthenticated:
		return "EgressAuthenticated"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSessionError:
		return "SessionError"
	case StatePermanentError:
		return "PermanentError"
	default:
		return "Unknown"
	}
}
