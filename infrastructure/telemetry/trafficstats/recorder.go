package trafficstats

// Recorder batches byte counts from a packet loop and flushes them to the
// Collector when the accumulated total reaches flushThresholdBytes.
//
// A Recorder is NOT safe for concurrent use. Create one per goroutine and
// call Flush (typically via defer) to drain any remaining bytes.
type Recorder struct {
	collector       *Collector
	pendingUplink   uint64
	pendingDownlink uint64
}

const flushThresholdBytes uint64 = 64 * 1024

// NewRecorder returns a Recorder bound to collector. A nil collector turns
// every Record/Flush call into a no-op.
func NewRecorder(collector *Collector) Recorder {
	return Recorder{collector: collector}
}

func (r *Recorder) RecordUplink(bytes int) {
	if r.collector == nil || bytes <= 0 {
		return
	}
	r.pendingUplink += uint64(bytes)
	if r.pendingUplink >= flushThresholdBytes {
		r.collector.AddUplinkBytes(r.pendingUplink)
		r.pendingUplink = 0
	}
}

func (r *Recorder) RecordDownlink(bytes int) {
	if r.collector == nil || bytes <= 0 {
		return
	}
	r.pendingDownlink += uint64(bytes)
	if r.pendingDownlink >= flushThresholdBytes {
		r.collector.AddDownlinkBytes(r.pendingDownlink)
		r.pendingDownlink = 0
	}
}

func (r *Recorder) Flush() {
	if r.collector == nil {
		return
	}
	if r.pendingUplink != 0 {
		r.collector.AddUplinkBytes(r.pendingUplink)
		r.pendingUplink = 0
	}
	if r.pendingDownlink != 0 {
		r.collector.AddDownlinkBytes(r.pendingDownlink)
		r.pendingDownlink = 0
	}
}
