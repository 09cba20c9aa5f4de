package trafficstats

import (
	"testing"
	"time"
)

func TestCollectorCountsBothDirections(t *testing.T) {
	collector := NewCollector(time.Second, 0)
	collector.AddUplinkBytes(1500)
	collector.AddUplinkBytes(500)
	collector.AddDownlinkBytes(9000)

	snapshot := collector.Snapshot()
	if snapshot.UplinkBytesTotal != 2000 {
		t.Fatalf("expected 2000 uplink bytes, got %d", snapshot.UplinkBytesTotal)
	}
	if snapshot.DownlinkBytesTotal != 9000 {
		t.Fatalf("expected 9000 downlink bytes, got %d", snapshot.DownlinkBytesTotal)
	}
}

func TestCollectorRateFromDelta(t *testing.T) {
	collector := NewCollector(time.Second, 0)
	collector.AddUplinkBytes(4096)
	collector.updateRates(2 * time.Second)

	snapshot := collector.Snapshot()
	if snapshot.UplinkRate != 2048 {
		t.Fatalf("expected 2048 B/s uplink rate, got %d", snapshot.UplinkRate)
	}
	if snapshot.DownlinkRate != 0 {
		t.Fatalf("expected idle downlink rate, got %d", snapshot.DownlinkRate)
	}
}

func TestCollectorRateSmoothing(t *testing.T) {
	collector := NewCollector(time.Second, 0.5)
	collector.AddUplinkBytes(1000)
	collector.updateRates(time.Second)
	collector.AddUplinkBytes(3000)
	collector.updateRates(time.Second)

	// first sample seeds the EMA at 1000, second blends in 3000 at alpha 0.5
	if rate := collector.Snapshot().UplinkRate; rate != 2000 {
		t.Fatalf("expected smoothed rate 2000, got %d", rate)
	}
}

func TestCollectorIgnoresZeroBytes(t *testing.T) {
	collector := NewCollector(time.Second, 0)
	collector.AddUplinkBytes(0)
	collector.AddDownlinkBytes(0)

	snapshot := collector.Snapshot()
	if snapshot.UplinkBytesTotal != 0 || snapshot.DownlinkBytesTotal != 0 {
		t.Fatalf("expected untouched totals, got %+v", snapshot)
	}
}
