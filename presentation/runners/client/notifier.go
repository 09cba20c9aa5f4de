package client

import (
	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/network"
)

// logNotifier reports session life-cycle events to the log. It sits behind
// the reconnector, so everything it sees has already been acted on.
type logNotifier struct {
	log logging.Logger
}

func newLogNotifier(log logging.Logger) *logNotifier {
	return &logNotifier{log: log}
}

func (n *logNotifier) ControlPlaneConnected() {
	n.log.Printf("control plane connected")
}

func (n *logNotifier) ControlPlaneDisconnected(err error) {
	n.log.Printf("control plane disconnected: %v", err)
}

func (n *logNotifier) PermanentFailure(err error) {
	n.log.Printf("permanent failure, giving up: %v", err)
}

func (n *logNotifier) DatapathConnected() {
	n.log.Printf("datapath connected")
}

func (n *logNotifier) DatapathDisconnected(networkInfo network.NetworkInfo, err error) {
	n.log.Printf("datapath disconnected on %s: %v", networkInfo, err)
}

func (n *logNotifier) StatusUpdated() {
}

var _ ppn.SessionNotification = (*logNotifier)(nil)
