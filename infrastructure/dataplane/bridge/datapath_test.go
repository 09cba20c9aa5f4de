package bridge

import (
	"bytes"
	"io"
	"net/netip"
	"testing"
	"time"

	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/infrastructure/telemetry/trafficstats"
)

// chanPipe is an in-memory PacketPipe: Read takes packets from in, Write
// delivers them to out.
type chanPipe struct {
	fd     int
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func newChanPipe(fd int) *chanPipe {
	return &chanPipe{
		fd:     fd,
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *chanPipe) Read(b []byte) (int, error) {
	select {
	case packet := <-p.in:
		return copy(b, packet), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *chanPipe) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.out <- append([]byte(nil), b...)
	return len(b), nil
}

func (p *chanPipe) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func (p *chanPipe) Fd() (int, error) { return p.fd, nil }

type connectingPipe struct {
	*chanPipe
	connected  []netip.AddrPort
	connectErr error
}

func (p *connectingPipe) Connect(addr netip.AddrPort) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = append(p.connected, addr)
	return nil
}

type failureReport struct {
	err error
	fd  int
}

type recordingNotification struct {
	established chan struct{}
	failed      chan failureReport
	permanent   chan error
}

func newRecordingNotification() *recordingNotification {
	return &recordingNotification{
		established: make(chan struct{}, 4),
		failed:      make(chan failureReport, 4),
		permanent:   make(chan error, 4),
	}
}

func (r *recordingNotification) DatapathEstablished() { r.established <- struct{}{} }
func (r *recordingNotification) DatapathFailed(err error, networkFd int) {
	r.failed <- failureReport{err: err, fd: networkFd}
}
func (r *recordingNotification) DatapathPermanentFailure(err error) { r.permanent <- err }

type nopLogger struct{}

func (nopLogger) Printf(format string, v ...any) {}

func transformKeys() (client, server ppn.TransformParams) {
	uplinkKey := bytes.Repeat([]byte{0x11}, 32)
	downlinkKey := bytes.Repeat([]byte{0x22}, 32)
	client = ppn.TransformParams{UplinkKey: uplinkKey, DownlinkKey: downlinkKey}
	server = ppn.TransformParams{UplinkKey: downlinkKey, DownlinkKey: uplinkKey}
	return client, server
}

func v4Payload() []byte {
	packet := make([]byte, 20)
	packet[0] = 0x45
	packet[19] = 0x7b
	return packet
}

func wifi() *network.NetworkInfo {
	return &network.NetworkInfo{ID: 1, Type: network.TypeWiFi}
}

func waitPacket(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case packet := <-ch:
		return packet
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a packet")
		return nil
	}
}

func startedDatapath(t *testing.T) (*Datapath, *recordingNotification, ppn.TransformParams) {
	t.Helper()
	clientParams, serverParams := transformKeys()
	d := NewDatapath(nopLogger{}, nil)
	events := newRecordingNotification()
	d.RegisterNotificationHandler(events)
	if err := d.Start(&ppn.EgressDescriptor{UplinkSPI: 1234}, clientParams); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, events, serverParams
}

func TestUplinkSealsTunnelPackets(t *testing.T) {
	d, _, serverParams := startedDatapath(t)
	tunnel := newChanPipe(1)
	socket := newChanPipe(2)

	if err := d.SwitchNetwork(1234, nil, wifi(), tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}

	tunnel.in <- v4Payload()
	wire := waitPacket(t, socket.out)

	if spi, ok := SPI(wire); !ok || spi != 1234 {
		t.Fatalf("expected spi 1234 on the wire, got %d", spi)
	}
	server, err := NewTransform(serverParams)
	if err != nil {
		t.Fatalf("server transform: %v", err)
	}
	payload, err := server.Open(wire)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(payload, v4Payload()) {
		t.Fatalf("expected original payload, got %x", payload)
	}
}

func TestDownlinkDeliversAndReportsEstablished(t *testing.T) {
	d, events, serverParams := startedDatapath(t)
	tunnel := newChanPipe(1)
	socket := newChanPipe(2)

	if err := d.SwitchNetwork(1234, nil, wifi(), tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}

	server, err := NewTransform(serverParams)
	if err != nil {
		t.Fatalf("server transform: %v", err)
	}
	payload := v4Payload()
	buffer := make([]byte, headerLength+len(payload), headerLength+len(payload)+tagLength)
	copy(buffer[headerLength:], payload)
	wire, err := server.Seal(5678, buffer, len(payload))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	socket.in <- wire
	got := waitPacket(t, tunnel.out)
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected payload delivered to tunnel, got %x", got)
	}
	select {
	case <-events.established:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected DatapathEstablished")
	}
}

func TestDownlinkDropsGarbage(t *testing.T) {
	d, events, serverParams := startedDatapath(t)
	tunnel := newChanPipe(1)
	socket := newChanPipe(2)

	if err := d.SwitchNetwork(1234, nil, wifi(), tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}

	socket.in <- []byte("not an encapsulated packet at all")

	// A valid packet after the garbage still goes through.
	server, err := NewTransform(serverParams)
	if err != nil {
		t.Fatalf("server transform: %v", err)
	}
	payload := v4Payload()
	buffer := make([]byte, headerLength+len(payload), headerLength+len(payload)+tagLength)
	copy(buffer[headerLength:], payload)
	wire, _ := server.Seal(5678, buffer, len(payload))
	socket.in <- wire

	got := waitPacket(t, tunnel.out)
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected valid payload after garbage, got %x", got)
	}
	select {
	case report := <-events.failed:
		t.Fatalf("expected garbage dropped silently, got failure %v", report.err)
	default:
	}
}

func TestSocketFailureReported(t *testing.T) {
	d, events, _ := startedDatapath(t)
	tunnel := newChanPipe(1)
	socket := newChanPipe(7)

	if err := d.SwitchNetwork(1234, nil, wifi(), tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}

	_ = socket.Close()

	select {
	case report := <-events.failed:
		if report.fd != 7 {
			t.Fatalf("expected failing socket fd 7, got %d", report.fd)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected DatapathFailed after socket close")
	}
}

func TestNilNetworkPausesWorkers(t *testing.T) {
	d, events, _ := startedDatapath(t)
	tunnel := newChanPipe(1)
	socket := newChanPipe(2)

	if err := d.SwitchNetwork(1234, nil, wifi(), tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}
	if err := d.SwitchNetwork(1234, nil, nil, tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork nil: %v", err)
	}

	// The paused datapath must not consume or report anything.
	tunnel.in <- v4Payload()
	select {
	case wire := <-socket.out:
		t.Fatalf("expected no traffic while paused, got %d bytes", len(wire))
	case report := <-events.failed:
		t.Fatalf("expected no failure while paused, got %v", report.err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSwitchBeforeStartRejected(t *testing.T) {
	d := NewDatapath(nopLogger{}, nil)
	err := d.SwitchNetwork(1234, nil, wifi(), newChanPipe(1), newChanPipe(2), 1)
	if err == nil {
		t.Fatalf("expected switch before start to fail")
	}
}

func TestConnectorDialsFirstReachableAddress(t *testing.T) {
	d, _, _ := startedDatapath(t)
	tunnel := newChanPipe(1)
	socket := &connectingPipe{chanPipe: newChanPipe(2)}
	addrs := []netip.AddrPort{
		netip.MustParseAddrPort("[2604:ca00:f001:4::5]:2153"),
		netip.MustParseAddrPort("64.9.240.165:2153"),
	}

	if err := d.SwitchNetwork(1234, addrs, wifi(), tunnel, socket, 2); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}
	if len(socket.connected) != 1 || socket.connected[0] != addrs[0] {
		t.Fatalf("expected first address dialed once, got %v", socket.connected)
	}
}

func TestRekeyBeforeStartRejected(t *testing.T) {
	d := NewDatapath(nopLogger{}, nil)
	if err := d.Rekey(bytes.Repeat([]byte{0x33}, 32), bytes.Repeat([]byte{0x44}, 32)); err == nil {
		t.Fatalf("expected rekey before start to fail")
	}
}

func TestTrafficAccountedPerDirection(t *testing.T) {
	stats := trafficstats.NewCollector(time.Second, 0)
	clientParams, serverParams := transformKeys()
	d := NewDatapath(nopLogger{}, stats)
	d.RegisterNotificationHandler(newRecordingNotification())
	if err := d.Start(&ppn.EgressDescriptor{UplinkSPI: 1234}, clientParams); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tunnel := newChanPipe(1)
	socket := newChanPipe(2)
	if err := d.SwitchNetwork(1234, nil, wifi(), tunnel, socket, 1); err != nil {
		t.Fatalf("SwitchNetwork: %v", err)
	}

	payload := v4Payload()
	tunnel.in <- payload
	waitPacket(t, socket.out)

	server, err := NewTransform(serverParams)
	if err != nil {
		t.Fatalf("server transform: %v", err)
	}
	buffer := make([]byte, headerLength+len(payload), headerLength+len(payload)+tagLength)
	copy(buffer[headerLength:], payload)
	wire, err := server.Seal(5678, buffer, len(payload))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	socket.in <- wire
	waitPacket(t, tunnel.out)

	// Recorders flush their remainder when the workers exit.
	d.Stop()
	_ = tunnel.Close()
	_ = socket.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snapshot := stats.Snapshot()
		if snapshot.UplinkBytesTotal == uint64(len(payload)) &&
			snapshot.DownlinkBytesTotal == uint64(len(payload)) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d bytes per direction, got %+v", len(payload), snapshot)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
