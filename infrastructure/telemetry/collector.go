// Package telemetry accumulates client life-cycle counters. Counters are
// cheap atomic increments on the hot paths and are drained in one shot by
// the reporting layer.
package telemetry

import "sync/atomic"

// Snapshot is one reporting window's worth of counters.
type Snapshot struct {
	ControlPlaneFailures int64 `json:"control_plane_failures"`
	DataPlaneFailures    int64 `json:"data_plane_failures"`
	SessionRestarts      int64 `json:"session_restarts"`
	NetworkSwitches      int64 `json:"network_switches"`
	SuccessfulRekeys     int64 `json:"successful_rekeys"`
}

type Collector struct {
	controlPlaneFailures atomic.Int64
	dataPlaneFailures    atomic.Int64
	sessionRestarts      atomic.Int64
	networkSwitches      atomic.Int64
	successfulRekeys     atomic.Int64
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) ControlPlaneFailure() { c.controlPlaneFailures.Add(1) }
func (c *Collector) DataPlaneFailure()    { c.dataPlaneFailures.Add(1) }
func (c *Collector) SessionRestart()      { c.sessionRestarts.Add(1) }
func (c *Collector) NetworkSwitch()       { c.networkSwitches.Add(1) }
func (c *Collector) SuccessfulRekey()     { c.successfulRekeys.Add(1) }

// Collect returns the counters accumulated since the previous Collect and
// resets them, so every increment is reported exactly once.
func (c *Collector) Collect() Snapshot {
	return Snapshot{
		ControlPlaneFailures: c.controlPlaneFailures.Swap(0),
		DataPlaneFailures:    c.dataPlaneFailures.Swap(0),
		SessionRestarts:      c.sessionRestarts.Swap(0),
		NetworkSwitches:      c.networkSwitches.Swap(0),
		SuccessfulRekeys:     c.successfulRekeys.Swap(0),
	}
}
