package session

import (
	"fmt"
	"net/netip"

	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/domain/status"
	"ppn/infrastructure/settings"
)

// Collaborator notifications below arrive serialized on the looper; the
// mutex is still taken because the public entry points run on arbitrary
// goroutines.

// AuthSuccessful moves the session into egress provisioning. A rekey pass
// repeats provisioning against the existing backend session.
func (s *Session) AuthSuccessful(isRekey bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isRekey {
		if s.state != StateEgressAuthenticating {
			panic(fmt.Sprintf("auth success in state %v", s.state))
		}
		s.state = StateEgressAuthenticated
	}
	if err := s.requestEgressLocked(isRekey); err != nil {
		s.controlPlaneFailureLocked(err)
	}
}

func (s *Session) AuthFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlPlaneFailureLocked(err)
}

// EgressAvailable finishes the control-plane sequence: install remote key
// material, then either start the datapath (initial pass) or swap its keys
// in place (rekey pass).
func (s *Session) EgressAvailable(isRekey bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	descriptor, err := s.egress.GetEgressSessionDetails()
	if err != nil {
		s.controlPlaneFailureLocked(err)
		return
	}
	if err := s.keys.SetRemoteKeyMaterial(descriptor.PublicValue, descriptor.ServerNonce); err != nil {
		s.controlPlaneFailureLocked(status.Internal(err.Error()))
		return
	}

	if isRekey {
		s.finishRekeyLocked()
		return
	}

	if s.state != StateEgressAuthenticated {
		panic(fmt.Sprintf("egress available in state %v", s.state))
	}
	s.state = StateConnecting

	id, timerErr := s.timers.StartTimer(s.cfg.KeepAliveInterval.Duration(), s.keepAliveExpired)
	if timerErr != nil {
		s.log.Printf("keep-alive timer not armed: %v", timerErr)
	} else {
		s.keepAliveTimerID = &id
	}

	s.notify(func(n ppn.SessionNotification) { n.ControlPlaneConnected() })

	transform, err := s.keys.TransformParams(s.suite)
	if err != nil {
		s.controlPlaneFailureLocked(status.Internal(err.Error()))
		return
	}
	if err := s.datapath.Start(descriptor, transform); err != nil {
		s.state = StateSessionError
		s.latestErr = err
		return
	}
	s.state = StateConnected
	s.latestErr = nil

	// A network change observed before the control plane finished is
	// replayed now that the datapath can take it.
	if s.activeNetwork != nil && s.activeSocket == nil {
		pending := s.pendingNetwork
		s.pendingNetwork = nil
		if pending == nil {
			pending = s.activeNetwork
		}
		if err := s.switchNetworkLocked(pending, 0); err != nil {
			s.log.Printf("deferred network switch failed: %v", err)
		}
	}
}

func (s *Session) EgressUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlPlaneFailureLocked(err)
}

// DatapathEstablished reports a healthy tunnel: the failure streak ends and
// any armed reattempt timer is void.
func (s *Session) DatapathEstablished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelReattemptTimerLocked()
	s.reattemptCount = 0
	s.latestErr = nil
	s.notify(func(n ppn.SessionNotification) { n.DatapathConnected() })
}

// DatapathFailed starts or continues the bounded reconnect loop. Once the
// attempt budget is spent the session gives up and reports exactly one
// DatapathDisconnected.
func (s *Session) DatapathFailed(err error, networkFd int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latestErr = err
	if s.reattemptCount >= s.cfg.Reattempt.MaxAttempts-1 {
		s.giveUpDatapathLocked(err)
		return
	}
	if s.reattemptTimerID != nil {
		panic("datapath reattempt timer already armed")
	}
	id, timerErr := s.timers.StartTimer(s.cfg.Reattempt.DelayDuration(), func() {
		s.queue.Post(s.AttemptDatapathReconnect)
	})
	if timerErr != nil {
		s.log.Printf("reattempt timer not armed: %v", timerErr)
		s.giveUpDatapathLocked(err)
		return
	}
	s.reattemptTimerID = &id
	s.reattemptCount++
}

func (s *Session) DatapathPermanentFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latestErr = err
	s.cancelReattemptTimerLocked()
	s.notifyDatapathDisconnectedLocked(err)
}

// AttemptDatapathReconnect re-issues the network switch for the active
// network with a fresh protected socket and a family-filtered address list.
func (s *Session) AttemptDatapathReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reattemptTimerID = nil
	if err := s.switchNetworkLocked(s.activeNetwork, s.reattemptCount); err != nil {
		s.log.Printf("datapath reconnect attempt %d failed: %v", s.reattemptCount, err)
	}
}

// switchNetworkLocked implements the network-switch policy. reattempt is 0
// for an ordinary switch, or the 1-based reconnect attempt number, which
// forces a fresh socket and narrows the address list to one family.
func (s *Session) switchNetworkLocked(networkInfo *network.NetworkInfo, reattempt int) error {
	descriptor, err := s.egress.GetEgressSessionDetails()
	if err != nil {
		// Control plane not finished yet: remember the network and replay
		// the switch once the datapath exists.
		s.pendingNetwork = networkInfo
		s.activeNetwork = networkInfo
		return nil
	}

	if networkInfo != nil && (!sameNetwork(s.activeNetwork, networkInfo) || reattempt > 0 || s.activeSocket == nil) {
		socket, socketErr := s.vpnService.CreateProtectedNetworkSocket(networkInfo)
		if socketErr != nil {
			return s.platformFailureLocked(status.Unavailable(fmt.Sprintf("protected socket: %v", socketErr)))
		}
		if s.activeSocket != nil {
			_ = s.activeSocket.Close()
		}
		s.activeSocket = socket
	}

	if s.activeTunnel == nil || !samePrefixes(s.tunnelRanges, descriptor.PrivateRanges) {
		tunnel, tunnelErr := s.vpnService.CreateTunnel(ppn.TunnelSpec{
			TunnelAddresses: descriptor.PrivateRanges,
			DNSAddresses:    ppn.DefaultDNSAddresses(),
			IsMetered:       s.cfg.MeteredNetwork,
		})
		if tunnelErr != nil {
			return s.platformFailureLocked(status.Unavailable(fmt.Sprintf("tunnel: %v", tunnelErr)))
		}
		if s.activeTunnel != nil {
			_ = s.activeTunnel.Close()
		}
		s.activeTunnel = tunnel
		s.tunnelRanges = descriptor.PrivateRanges
	}

	addrs := s.switchAddresses(descriptor, reattempt)
	s.activeNetwork = networkInfo
	s.networkSwitches++
	if s.metrics != nil {
		s.metrics.NetworkSwitch()
	}

	if err := s.datapath.SwitchNetwork(descriptor.UplinkSPI, addrs, networkInfo,
		s.activeTunnel, s.activeSocket, s.switchBudget()); err != nil {
		s.latestErr = err
		return err
	}
	return nil
}

// switchAddresses applies the alternating family-preference policy: an
// ordinary switch offers every egress address; reconnect attempts stay on
// IPv6 for the first half of the budget, then fall back to IPv4.
func (s *Session) switchAddresses(descriptor *ppn.EgressDescriptor, reattempt int) []netip.AddrPort {
	if reattempt == 0 {
		return descriptor.SockAddrs
	}
	v6, hasV6 := descriptor.Ipv6SockAddr()
	v4, hasV4 := descriptor.Ipv4SockAddr()
	switch {
	case hasV6 && (!hasV4 || s.cfg.Reattempt.PreferIpv6(reattempt)):
		return []netip.AddrPort{v6}
	case hasV4:
		return []netip.AddrPort{v4}
	default:
		return descriptor.SockAddrs
	}
}

func (s *Session) switchBudget() int {
	// Half the reattempt budget mirrors the per-family retry count.
	budget := s.cfg.Reattempt.MaxAttempts / 2
	if budget < 1 {
		budget = 1
	}
	return budget
}

func (s *Session) finishRekeyLocked() {
	transform, err := s.keys.TransformParams(s.suite)
	if err != nil {
		s.controlPlaneFailureLocked(status.Internal(err.Error()))
		return
	}
	if err := s.datapath.Rekey(transform.UplinkKey, transform.DownlinkKey); err != nil {
		s.controlPlaneFailureLocked(err)
		return
	}
	s.successfulRekeys++
	if s.metrics != nil {
		s.metrics.SuccessfulRekey()
	}
	s.notify(func(n ppn.SessionNotification) { n.StatusUpdated() })
}

func (s *Session) requestEgressLocked(isRekey bool) error {
	if s.cfg.Dataplane == settings.DataplaneIpSec {
		return s.egress.GetEgressNodeForPpnIpSec(ppn.PpnRequestParams{
			AuthResult:      s.auth.AuthResult(),
			ClientPublicKey: s.keys.PublicValue(),
			ClientNonce:     s.keys.ClientNonce(),
			DownlinkSPI:     s.keys.DownlinkSPI(),
			Suite:           s.suite,
			IsRekey:         isRekey,
		})
	}
	return s.egress.GetEgressNodeForBridge(s.auth.AuthResult())
}

// controlPlaneFailureLocked classifies a control-plane failure exactly once:
// permanent denials kill the session for good, everything else parks it in
// SessionError.
func (s *Session) controlPlaneFailureLocked(err error) {
	s.latestErr = err
	if status.IsPermanent(err) {
		s.state = StatePermanentError
		s.notify(func(n ppn.SessionNotification) { n.PermanentFailure(err) })
		return
	}
	s.state = StateSessionError
	s.notify(func(n ppn.SessionNotification) { n.ControlPlaneDisconnected(err) })
}

func (s *Session) platformFailureLocked(err error) error {
	s.controlPlaneFailureLocked(err)
	return err
}

func (s *Session) giveUpDatapathLocked(err error) {
	s.notifyDatapathDisconnectedLocked(err)
}

func (s *Session) notifyDatapathDisconnectedLocked(err error) {
	var nw network.NetworkInfo
	if s.activeNetwork != nil {
		nw = *s.activeNetwork
	}
	s.notify(func(n ppn.SessionNotification) { n.DatapathDisconnected(nw, err) })
}

func (s *Session) cancelReattemptTimerLocked() {
	if s.reattemptTimerID != nil {
		s.timers.CancelTimer(*s.reattemptTimerID)
		s.reattemptTimerID = nil
	}
}

// keepAliveExpired runs on the timer goroutine; the re-arm and notification
// are sequenced through the looper like every other asynchronous event.
func (s *Session) keepAliveExpired() {
	s.queue.Post(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != StateConnecting && s.state != StateConnected {
			s.keepAliveTimerID = nil
			return
		}
		id, err := s.timers.StartTimer(s.cfg.KeepAliveInterval.Duration(), s.keepAliveExpired)
		if err != nil {
			s.log.Printf("keep-alive timer not re-armed: %v", err)
			s.keepAliveTimerID = nil
		} else {
			s.keepAliveTimerID = &id
		}
		s.notify(func(n ppn.SessionNotification) { n.StatusUpdated() })
	})
}
