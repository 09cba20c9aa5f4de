package trafficstats

import (
	"testing"
	"time"
)

func TestRecorderBatchesBelowThreshold(t *testing.T) {
	collector := NewCollector(time.Second, 0)
	recorder := NewRecorder(collector)

	recorder.RecordUplink(1500)
	recorder.RecordDownlink(1500)
	if got := collector.Snapshot().UplinkBytesTotal; got != 0 {
		t.Fatalf("expected batched bytes to stay pending, got %d", got)
	}

	recorder.Flush()
	snapshot := collector.Snapshot()
	if snapshot.UplinkBytesTotal != 1500 || snapshot.DownlinkBytesTotal != 1500 {
		t.Fatalf("expected flush to drain both directions, got %+v", snapshot)
	}
}

func TestRecorderFlushesAtThreshold(t *testing.T) {
	collector := NewCollector(time.Second, 0)
	recorder := NewRecorder(collector)

	for i := 0; i < 64; i++ {
		recorder.RecordUplink(1024)
	}
	if got := collector.Snapshot().UplinkBytesTotal; got != 64*1024 {
		t.Fatalf("expected automatic flush at threshold, got %d", got)
	}
}

func TestRecorderNilCollectorIsNoOp(t *testing.T) {
	recorder := NewRecorder(nil)
	recorder.RecordUplink(1500)
	recorder.RecordDownlink(1500)
	recorder.Flush()
}

func TestRecorderIgnoresNonPositiveCounts(t *testing.T) {
	collector := NewCollector(time.Second, 0)
	recorder := NewRecorder(collector)

	recorder.RecordUplink(0)
	recorder.RecordUplink(-5)
	recorder.Flush()
	if got := collector.Snapshot().UplinkBytesTotal; got != 0 {
		t.Fatalf("expected nothing recorded, got %d", got)
	}
}
