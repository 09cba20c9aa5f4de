// Package bridge implements the bridge dataplane: an AEAD-encapsulated UDP
// tunnel between the local TUN interface and the egress node. The session
// owns the pipes; the datapath only pumps packets between them.
package bridge

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"golang.org/x/sync/errgroup"

	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/infrastructure/network/ip"
	"ppn/infrastructure/telemetry/trafficstats"
)

const maxPacketSize = 1500

// Connector is implemented by protected sockets that dial the egress
// themselves. Sockets without it are assumed pre-connected.
type Connector interface {
	Connect(addr netip.AddrPort) error
}

type Datapath struct {
	log   logging.Logger
	stats *trafficstats.Collector

	mu           sync.Mutex
	notification ppn.DatapathNotification
	transform    *Transform
	suite        ppn.CipherSuite
	cancel       context.CancelFunc
	group        *errgroup.Group
}

// NewDatapath builds an idle datapath. stats may be nil to skip byte
// accounting.
func NewDatapath(log logging.Logger, stats *trafficstats.Collector) *Datapath {
	return &Datapath{log: log, stats: stats}
}

func (d *Datapath) RegisterNotificationHandler(notification ppn.DatapathNotification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notification = notification
}

func (d *Datapath) Start(egress *ppn.EgressDescriptor, transform ppn.TransformParams) error {
	t, err := NewTransform(transform)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transform = t
	d.suite = transform.Suite
	return nil
}

func (d *Datapath) SwitchNetwork(spi uint32, addrs []netip.AddrPort, networkInfo *network.NetworkInfo,
	tunnel ppn.PacketPipe, socket ppn.PacketPipe, attemptBudget int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopWorkersLocked()
	if d.transform == nil {
		return fmt.Errorf("datapath not started")
	}
	// No network: stay paused until the next switch.
	if networkInfo == nil || socket == nil {
		return nil
	}
	if err := connect(socket, addrs, attemptBudget); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, workerCtx := errgroup.WithContext(ctx)
	d.cancel = cancel
	d.group = group

	transform := d.transform
	notification := d.notification
	fd, _ := socket.Fd()
	var established sync.Once

	// The first worker to fail reports; the errgroup cancels its sibling.
	// A sibling may stay blocked in a read until the session closes the
	// pipe, so reporting never waits for both.
	var failed sync.Once
	report := func(err error) {
		failed.Do(func() {
			d.log.Printf("datapath worker stopped: %v", err)
			if notification != nil {
				notification.DatapathFailed(err, fd)
			}
		})
	}

	stats := d.stats
	group.Go(func() error {
		if err := uplink(workerCtx, transform, spi, tunnel, socket, stats); err != nil {
			report(err)
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := downlink(workerCtx, transform, socket, tunnel, stats, func() {
			established.Do(func() {
				if notification != nil {
					notification.DatapathEstablished()
				}
			})
		})
		if err != nil {
			report(err)
			return err
		}
		return nil
	})
	return nil
}

func (d *Datapath) Rekey(uplinkKey, downlinkKey []byte) error {
	d.mu.Lock()
	transform := d.transform
	suite := d.suite
	d.mu.Unlock()
	if transform == nil {
		return fmt.Errorf("datapath not started")
	}
	return transform.Rekey(ppn.TransformParams{
		UplinkKey:   uplinkKey,
		DownlinkKey: downlinkKey,
		Suite:       suite,
	})
}

func (d *Datapath) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopWorkersLocked()
	d.transform = nil
}

func (d *Datapath) stopWorkersLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
		d.group = nil
	}
}

func connect(socket ppn.PacketPipe, addrs []netip.AddrPort, attemptBudget int) error {
	connector, ok := socket.(Connector)
	if !ok {
		return nil
	}
	if attemptBudget < 1 {
		attemptBudget = 1
	}
	var lastErr error
	for _, addr := range addrs {
		for attempt := 0; attempt < attemptBudget; attempt++ {
			if err := connector.Connect(addr); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no egress address")
	}
	return fmt.Errorf("connect egress: %w", lastErr)
}

// uplink reads plaintext packets from the TUN interface, seals them in place
// and writes the encapsulated packets to the protected socket.
//
// Buffer layout, headroom reserved before the payload and capacity behind:
//
//	[ 4B SPI ][ 12B nonce ][ payload (<= maxPacketSize) ][ 16B tag ]
func uplink(ctx context.Context, transform *Transform, spi uint32, tunnel, socket ppn.PacketPipe,
	stats *trafficstats.Collector) error {
	buffer := make([]byte, headerLength+maxPacketSize+tagLength)
	recorder := trafficstats.NewRecorder(stats)
	defer recorder.Flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			n, err := tunnel.Read(buffer[headerLength : headerLength+maxPacketSize])
			// A read may complete after the switch away from this pair;
			// the packet belongs to the next worker set then.
			if ctx.Err() != nil {
				return nil
			}
			if n > 0 {
				packet, sealErr := transform.Seal(spi, buffer, n)
				if sealErr != nil {
					return fmt.Errorf("seal packet: %w", sealErr)
				}
				if _, wErr := socket.Write(packet); wErr != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("write to egress: %w", wErr)
				}
				recorder.RecordUplink(n)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read from tunnel: %w", err)
			}
		}
	}
}

// downlink reads encapsulated packets from the protected socket, opens them
// and writes the payloads to the TUN interface. Packets that fail to
// authenticate or do not carry an IP packet are dropped: untrusted UDP input
// can be garbage or attacker-driven.
func downlink(ctx context.Context, transform *Transform, socket, tunnel ppn.PacketPipe,
	stats *trafficstats.Collector, established func()) error {
	buffer := make([]byte, headerLength+maxPacketSize+tagLength)
	recorder := trafficstats.NewRecorder(stats)
	defer recorder.Flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			n, err := socket.Read(buffer)
			if ctx.Err() != nil {
				return nil
			}
			if n > 0 {
				payload, openErr := transform.Open(buffer[:n])
				if openErr == nil && ip.Validate(payload) == nil {
					established()
					if _, wErr := tunnel.Write(payload); wErr != nil {
						if ctx.Err() != nil {
							return nil
						}
						return fmt.Errorf("write to tunnel: %w", wErr)
					}
					recorder.RecordDownlink(len(payload))
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read from egress: %w", err)
			}
		}
	}
}

var _ ppn.Datapath = (*Datapath)(nil)
