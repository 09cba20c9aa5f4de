// Package session implements the client-side tunnel orchestrator: one state
// machine sequencing authentication, egress provisioning, datapath bring-up,
// live network switching, bounded reconnect and rekey.
//
// Concurrency model: collaborators deliver their notifications by posting
// onto the session's looper, so all asynchronous events arrive one at a
// time. The public entry points may be called from arbitrary goroutines and
// take the session mutex; application notifications are posted onto the
// looper, never invoked under the mutex.
package session

import (
	"fmt"
	"net/netip"
	"sync"

	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/domain/status"
	"ppn/infrastructure/looper"
	"ppn/infrastructure/settings"
	"ppn/infrastructure/timers"
)

type Session struct {
	mu sync.Mutex

	cfg        settings.Settings
	suite      ppn.CipherSuite
	auth       ppn.Authenticator
	egress     ppn.EgressManager
	datapath   ppn.Datapath
	vpnService ppn.VpnService
	timers     *timers.Manager
	keys       KeyMaterial
	newKeys    KeyFactory
	queue      *looper.Looper
	log        logging.Logger
	metrics    MetricsSink

	notification ppn.SessionNotification

	state     State
	latestErr error

	activeNetwork  *network.NetworkInfo
	pendingNetwork *network.NetworkInfo
	activeTunnel   ppn.PacketPipe
	tunnelRanges   []netip.Prefix
	activeSocket   ppn.PacketPipe

	reattemptCount   int
	reattemptTimerID *int
	keepAliveTimerID *int

	successfulRekeys int
	networkSwitches  int
}

// KeyMaterial is the slice of the key-exchange session the state machine
// needs: enough to build egress requests and derive transform keys.
type KeyMaterial interface {
	PublicValue() []byte
	ClientNonce() []byte
	DownlinkSPI() uint32
	SetRemoteKeyMaterial(public, nonce []byte) error
	TransformParams(suite ppn.CipherSuite) (ppn.TransformParams, error)
}

// KeyFactory mints fresh key material for each rekey pass.
type KeyFactory func() (KeyMaterial, error)

// MetricsSink receives the session's counter events so the reporting layer
// sees them beyond the lifetime of this one session.
type MetricsSink interface {
	NetworkSwitch()
	SuccessfulRekey()
}

type Deps struct {
	Auth       ppn.Authenticator
	Egress     ppn.EgressManager
	Datapath   ppn.Datapath
	VpnService ppn.VpnService
	Timers     *timers.Manager
	Keys       KeyMaterial
	NewKeys    KeyFactory
	Queue      *looper.Looper
	Log        logging.Logger
	// Metrics is optional.
	Metrics MetricsSink
}

func NewSession(cfg settings.Settings, deps Deps) *Session {
	cfg = cfg.Normalized()
	s := &Session{
		cfg:             cfg,
		suite:           ppn.ParseSuite(cfg.CipherSuite),
		auth:            deps.Auth,
		egress:          deps.Egress,
		datapath:        deps.Datapath,
		vpnService:      deps.VpnService,
		timers:          deps.Timers,
		keys:            deps.Keys,
		newKeys:         deps.NewKeys,
		queue:           deps.Queue,
		log:             deps.Log,
		metrics:         deps.Metrics,
		state:           StateInitialized,
		networkSwitches: 1, // numbers the switch attempt the session is on
	}
	s.auth.RegisterNotificationHandler(s)
	s.egress.RegisterNotificationHandler(s)
	s.datapath.RegisterNotificationHandler(s)
	return s
}

func (s *Session) RegisterNotificationHandler(notification ppn.SessionNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notification = notification
}

// Start drives the session out of Initialized: it begins authentication and
// returns; all further progress is event-driven. A session is single-use —
// restarting a failed session means building a new one.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitialized {
		return status.FailedPrecondition(fmt.Sprintf("start in state %v", s.state))
	}
	s.state = StateEgressAuthenticating
	s.auth.Start(false)
	return nil
}

// SetNetwork is the OS network-change entry point. A nil networkInfo means
// no network is available; the switch is still handed to the datapath so it
// can pause instead of failing.
func (s *Session) SetNetwork(networkInfo *network.NetworkInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePermanentError {
		return status.FailedPrecondition("network change on a permanently failed session")
	}
	if sameNetwork(s.activeNetwork, networkInfo) && s.activeSocket != nil {
		return nil
	}
	return s.switchNetworkLocked(networkInfo, 0)
}

// DoRekey re-runs authentication and egress provisioning marked as a rekey
// pass, then swaps the datapath keys in place. The tunnel interface and the
// active network socket are untouched.
func (s *Session) DoRekey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting && s.state != StateConnected {
		return status.FailedPrecondition(fmt.Sprintf("rekey in state %v", s.state))
	}
	keys, err := s.newKeys()
	if err != nil {
		return status.Internal(fmt.Sprintf("rekey key material: %v", err))
	}
	s.keys = keys
	s.auth.Start(true)
	return nil
}

// Stop releases every owned resource. The session is unusable afterwards.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelReattemptTimerLocked()
	if s.keepAliveTimerID != nil {
		s.timers.CancelTimer(*s.keepAliveTimerID)
		s.keepAliveTimerID = nil
	}
	s.datapath.Stop()
	if s.activeTunnel != nil {
		_ = s.activeTunnel.Close()
		s.activeTunnel = nil
	}
	if s.activeSocket != nil {
		_ = s.activeSocket.Close()
		s.activeSocket = nil
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LatestStatus returns the outcome of the most recent phase; nil when the
// session is healthy.
func (s *Session) LatestStatus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestErr
}

// ActiveNetworkInfo returns a copy of the network the session last switched
// to, or nil when no network is active.
func (s *Session) ActiveNetworkInfo() *network.NetworkInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeNetwork == nil {
		return nil
	}
	copied := *s.activeNetwork
	return &copied
}

// ActiveTunnelFd reports the descriptor of the current tunnel interface.
func (s *Session) ActiveTunnelFd() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTunnel == nil {
		return 0, false
	}
	fd, err := s.activeTunnel.Fd()
	if err != nil {
		return 0, false
	}
	return fd, true
}

// ReattemptCount reports how many datapath reconnects are in flight for the
// current failure streak.
func (s *Session) ReattemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reattemptCount
}

// ReattemptTimerID reports the pending reattempt timer, if one is armed.
func (s *Session) ReattemptTimerID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reattemptTimerID == nil {
		return 0, false
	}
	return *s.reattemptTimerID, true
}

func sameNetwork(a, b *network.NetworkInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func samePrefixes(a, b []netip.Prefix) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// notify posts an application notification onto the looper so it never runs
// under the session mutex.
func (s *Session) notify(deliver func(ppn.SessionNotification)) {
	notification := s.notification
	if notification == nil {
		return
	}
	s.queue.Post(func() { deliver(notification) })
}
