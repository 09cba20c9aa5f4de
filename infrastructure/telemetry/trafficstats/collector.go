// Package trafficstats accounts tunneled bytes per direction and keeps a
// smoothed rate estimate for display.
package trafficstats

import (
	"context"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	UplinkBytesTotal   uint64
	DownlinkBytesTotal uint64
	UplinkRate         uint64 // bytes/sec
	DownlinkRate       uint64 // bytes/sec
}

type Collector struct {
	uplinkTotal   atomic.Uint64
	downlinkTotal atomic.Uint64
	uplinkRate    atomic.Uint64
	downlinkRate  atomic.Uint64

	sampleInterval time.Duration
	emaAlpha       float64

	// accessed only from the single sampler goroutine in Start()
	lastUplink   uint64
	lastDownlink uint64
	uplinkEMA    float64
	downlinkEMA  float64
	started      atomic.Bool
}

func NewCollector(sampleInterval time.Duration, emaAlpha float64) *Collector {
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	if emaAlpha < 0 {
		emaAlpha = 0
	}
	if emaAlpha > 1 {
		emaAlpha = 1
	}
	return &Collector{
		sampleInterval: sampleInterval,
		emaAlpha:       emaAlpha,
	}
}

// Start samples rates until ctx is cancelled. Only the first call runs.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}

	ticker := time.NewTicker(c.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.updateRates(c.sampleInterval)
		}
	}
}

// AddUplinkBytes is allocation-free and intended for hot paths.
func (c *Collector) AddUplinkBytes(bytes uint64) {
	if bytes == 0 {
		return
	}
	c.uplinkTotal.Add(bytes)
}

// AddDownlinkBytes is allocation-free and intended for hot paths.
func (c *Collector) AddDownlinkBytes(bytes uint64) {
	if bytes == 0 {
		return
	}
	c.downlinkTotal.Add(bytes)
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		UplinkBytesTotal:   c.uplinkTotal.Load(),
		DownlinkBytesTotal: c.downlinkTotal.Load(),
		UplinkRate:         c.uplinkRate.Load(),
		DownlinkRate:       c.downlinkRate.Load(),
	}
}

func (c *Collector) updateRates(interval time.Duration) {
	seconds := interval.Seconds()
	if seconds <= 0 {
		return
	}

	uplinkNow := c.uplinkTotal.Load()
	downlinkNow := c.downlinkTotal.Load()

	uplinkDelta := uplinkNow - c.lastUplink
	downlinkDelta := downlinkNow - c.lastDownlink
	c.lastUplink = uplinkNow
	c.lastDownlink = downlinkNow

	uplinkPerSec := float64(uplinkDelta) / seconds
	downlinkPerSec := float64(downlinkDelta) / seconds

	if c.emaAlpha > 0 {
		if c.uplinkEMA == 0 {
			c.uplinkEMA = uplinkPerSec
		} else {
			c.uplinkEMA = c.emaAlpha*uplinkPerSec + (1-c.emaAlpha)*c.uplinkEMA
		}
		if c.downlinkEMA == 0 {
			c.downlinkEMA = downlinkPerSec
		} else {
			c.downlinkEMA = c.emaAlpha*downlinkPerSec + (1-c.emaAlpha)*c.downlinkEMA
		}
		uplinkPerSec = c.uplinkEMA
		downlinkPerSec = c.downlinkEMA
	}

	c.uplinkRate.Store(uint64(uplinkPerSec))
	c.downlinkRate.Store(uint64(downlinkPerSec))
}
