package client

import (
	"time"

	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/infrastructure/looper"
	"ppn/infrastructure/telemetry"
	"ppn/infrastructure/timers"
)

// State tracks the reconnector's view of the connection.
type State int

const (
	StateStopped State = iota
	StateConnecting
	StateConnected
	StateWaitingToReconnect
	StatePermanentFailure
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateWaitingToReconnect:
		return "WaitingToReconnect"
	case StatePermanentFailure:
		return "PermanentFailure"
	default:
		return "Stopped"
	}
}

// ManagedSession is the slice of a session the reconnector drives. A session
// is single-use; the reconnector replaces it wholesale on restart.
type ManagedSession interface {
	Start() error
	SetNetwork(networkInfo *network.NetworkInfo) error
	DoRekey() error
	Stop()
	RegisterNotificationHandler(notification ppn.SessionNotification)
}

// SessionFactory builds a fresh session and its collaborators for one
// connection attempt.
type SessionFactory func() (ManagedSession, error)

// Reconnector keeps a session alive across transient failures. It observes
// the session's life-cycle notifications, tears the failed session down and
// builds a new one after an exponentially growing pause. Permanent failures
// stop the loop.
type Reconnector struct {
	queue      *looper.Looper
	timers     *timers.Manager
	newSession SessionFactory
	metrics    *telemetry.Collector
	forward    ppn.SessionNotification
	log        logging.Logger

	initialDelay time.Duration
	maxDelay     time.Duration

	// Mutated on the looper only.
	state            State
	session          ManagedSession
	latestNetwork    *network.NetworkInfo
	reconnectDelay   time.Duration
	reconnectTimerID *int
	sessionRestarts  int
	controlFailures  int
	dataFailures     int
}

type Deps struct {
	Queue      *looper.Looper
	Timers     *timers.Manager
	NewSession SessionFactory
	Metrics    *telemetry.Collector
	// Forward receives the session notifications after the reconnector has
	// acted on them. Optional.
	Forward ppn.SessionNotification
	Log     logging.Logger

	// InitialReconnectDelay seeds the backoff; zero selects the default.
	InitialReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff; zero selects the default.
	MaxReconnectDelay time.Duration
}

const (
	defaultInitialReconnectDelay = 500 * time.Millisecond
	defaultMaxReconnectDelay     = 30 * time.Second
)

func NewReconnector(deps Deps) *Reconnector {
	initial := deps.InitialReconnectDelay
	if initial <= 0 {
		initial = defaultInitialReconnectDelay
	}
	max := deps.MaxReconnectDelay
	if max < initial {
		max = defaultMaxReconnectDelay
	}
	return &Reconnector{
		queue:          deps.Queue,
		timers:         deps.Timers,
		newSession:     deps.NewSession,
		metrics:        deps.Metrics,
		forward:        deps.Forward,
		log:            deps.Log,
		initialDelay:   initial,
		maxDelay:       max,
		reconnectDelay: initial,
	}
}

// Start builds the first session and begins connecting.
func (r *Reconnector) Start() {
	r.queue.Post(func() {
		if r.state != StateStopped {
			return
		}
		r.startSession()
	})
}

// Stop tears the current session down and halts reconnection. Once the
// queue is closed there is nothing left to tear down, so a late Stop
// returns immediately instead of waiting on a task that will never run.
func (r *Reconnector) Stop() {
	done := make(chan struct{})
	accepted := r.queue.Post(func() {
		defer close(done)
		r.cancelReconnectTimer()
		if r.session != nil {
			r.session.Stop()
			r.session = nil
		}
		r.state = StateStopped
	})
	if !accepted {
		return
	}
	<-done
}

// SetNetwork forwards the OS network change to the live session and records
// it so restarted sessions start on the right network.
func (r *Reconnector) SetNetwork(networkInfo *network.NetworkInfo) {
	r.queue.Post(func() {
		r.latestNetwork = networkInfo
		if r.session == nil {
			return
		}
		if err := r.session.SetNetwork(networkInfo); err != nil {
			r.log.Printf("network change rejected: %v", err)
		}
	})
}

// Rekey forwards a rekey request to the live session.
func (r *Reconnector) Rekey() {
	r.queue.Post(func() {
		if r.session == nil {
			return
		}
		if err := r.session.DoRekey(); err != nil {
			r.log.Printf("rekey rejected: %v", err)
		}
	})
}

// DebugSnapshot is the reconnector's diagnostic view.
type DebugSnapshot struct {
	State                          string `json:"state"`
	SessionRestartCounter          int    `json:"session_restart_counter"`
	SuccessiveControlPlaneFailures int    `json:"successive_control_plane_failures"`
	SuccessiveDataPlaneFailures    int    `json:"successive_data_plane_failures"`
}

// GetDebugInfo never blocks: after the queue is closed it reports the
// stopped state instead of waiting on the worker.
func (r *Reconnector) GetDebugInfo() DebugSnapshot {
	snapshot := make(chan DebugSnapshot, 1)
	accepted := r.queue.Post(func() {
		snapshot <- DebugSnapshot{
			State:                          r.state.String(),
			SessionRestartCounter:          r.sessionRestarts,
			SuccessiveControlPlaneFailures: r.controlFailures,
			SuccessiveDataPlaneFailures:    r.dataFailures,
		}
	})
	if !accepted {
		return DebugSnapshot{State: StateStopped.String()}
	}
	return <-snapshot
}

// Session notifications. The session delivers these on the shared looper,
// so they already run serialized with every other reconnector task and
// mutate state directly instead of re-posting.

func (r *Reconnector) ControlPlaneConnected() {
	r.controlFailures = 0
	r.reconnectDelay = r.initialDelay
	if r.forward != nil {
		r.forward.ControlPlaneConnected()
	}
}

func (r *Reconnector) ControlPlaneDisconnected(err error) {
	r.controlFailures++
	if r.metrics != nil {
		r.metrics.ControlPlaneFailure()
	}
	r.scheduleRestart()
	if r.forward != nil {
		r.forward.ControlPlaneDisconnected(err)
	}
}

func (r *Reconnector) PermanentFailure(err error) {
	r.cancelReconnectTimer()
	if r.session != nil {
		r.session.Stop()
		r.session = nil
	}
	r.state = StatePermanentFailure
	if r.forward != nil {
		r.forward.PermanentFailure(err)
	}
}

func (r *Reconnector) DatapathConnected() {
	r.state = StateConnected
	r.dataFailures = 0
	r.reconnectDelay = r.initialDelay
	if r.forward != nil {
		r.forward.DatapathConnected()
	}
}

func (r *Reconnector) DatapathDisconnected(networkInfo network.NetworkInfo, err error) {
	r.dataFailures++
	if r.metrics != nil {
		r.metrics.DataPlaneFailure()
	}
	r.scheduleRestart()
	if r.forward != nil {
		r.forward.DatapathDisconnected(networkInfo, err)
	}
}

func (r *Reconnector) StatusUpdated() {
	if r.forward != nil {
		r.forward.StatusUpdated()
	}
}

// startSession runs on the looper.
func (r *Reconnector) startSession() {
	s, err := r.newSession()
	if err != nil {
		r.log.Printf("session build failed: %v", err)
		r.scheduleRestart()
		return
	}
	s.RegisterNotificationHandler(r)
	r.session = s
	r.state = StateConnecting
	if err := s.Start(); err != nil {
		r.log.Printf("session start failed: %v", err)
		r.scheduleRestart()
		return
	}
	if r.latestNetwork != nil {
		if err := s.SetNetwork(r.latestNetwork); err != nil {
			r.log.Printf("network change rejected: %v", err)
		}
	}
}

// scheduleRestart runs on the looper. A restart already pending absorbs
// further failure reports from the dying session.
func (r *Reconnector) scheduleRestart() {
	if r.state == StateStopped || r.state == StatePermanentFailure {
		return
	}
	if r.reconnectTimerID != nil {
		return
	}
	delay := r.reconnectDelay
	r.reconnectDelay *= 2
	if r.reconnectDelay > r.maxDelay {
		r.reconnectDelay = r.maxDelay
	}
	id, err := r.timers.StartTimer(delay, func() {
		r.queue.Post(r.restart)
	})
	if err != nil {
		r.log.Printf("reconnect timer not armed: %v", err)
		return
	}
	r.reconnectTimerID = &id
	r.state = StateWaitingToReconnect
}

// restart runs on the looper.
func (r *Reconnector) restart() {
	r.reconnectTimerID = nil
	if r.state != StateWaitingToReconnect {
		return
	}
	if r.session != nil {
		r.session.Stop()
		r.session = nil
	}
	r.sessionRestarts++
	if r.metrics != nil {
		r.metrics.SessionRestart()
	}
	r.startSession()
}

func (r *Reconnector) cancelReconnectTimer() {
	if r.reconnectTimerID != nil {
		r.timers.CancelTimer(*r.reconnectTimerID)
		r.reconnectTimerID = nil
	}
}

var _ ppn.SessionNotification = (*Reconnector)(nil)
