package egress

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ppn/application/ppn"
	"ppn/domain/status"
	"ppn/infrastructure/looper"
)

type fakeFetcher struct {
	mu       sync.Mutex
	bodies   [][]byte
	response ppn.HttpResponse
}

func (f *fakeFetcher) PostJSON(_ string, body []byte) (ppn.HttpResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return f.response, nil
}

type egressRecorder struct {
	available   chan bool
	unavailable chan error
}

func newEgressRecorder() *egressRecorder {
	return &egressRecorder{available: make(chan bool, 1), unavailable: make(chan error, 1)}
}

func (r *egressRecorder) EgressAvailable(isRekey bool) { r.available <- isRekey }
func (r *egressRecorder) EgressUnavailable(err error)  { r.unavailable <- err }

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func newManager(fetcher *fakeFetcher) (*Manager, *egressRecorder, *looper.Looper) {
	queue := looper.New()
	m := NewManager("https://egress.example.com", fetcher, queue, nopLogger{})
	recorder := newEgressRecorder()
	m.RegisterNotificationHandler(recorder)
	return m, recorder, queue
}

func TestBridgeNegotiationStoresDescriptor(t *testing.T) {
	fetcher := &fakeFetcher{response: ppn.HttpResponse{Code: 200, JSONBody: []byte(sampleResponse)}}
	m, recorder, queue := newManager(fetcher)
	defer queue.Close()

	if err := m.GetEgressNodeForBridge(&ppn.AuthResult{JWTToken: "signed"}); err != nil {
		t.Fatalf("GetEgressNodeForBridge: %v", err)
	}

	select {
	case isRekey := <-recorder.available:
		if isRekey {
			t.Fatal("initial negotiation must not be marked rekey")
		}
	case err := <-recorder.unavailable:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no egress outcome delivered")
	}

	d, err := m.GetEgressSessionDetails()
	if err != nil {
		t.Fatalf("GetEgressSessionDetails: %v", err)
	}
	if d.UplinkSPI != 1234 {
		t.Fatalf("expected SPI 1234, got %d", d.UplinkSPI)
	}
}

func TestBridgeNegotiationRejectsMissingAuth(t *testing.T) {
	m, _, queue := newManager(&fakeFetcher{})
	defer queue.Close()

	err := m.GetEgressNodeForBridge(nil)
	if status.FromCode(err) != status.CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestNotFoundSurfacesThroughNotification(t *testing.T) {
	fetcher := &fakeFetcher{response: ppn.HttpResponse{Code: 404, Message: "404 Not Found"}}
	m, recorder, queue := newManager(fetcher)
	defer queue.Close()

	if err := m.GetEgressNodeForBridge(&ppn.AuthResult{JWTToken: "signed"}); err != nil {
		t.Fatalf("GetEgressNodeForBridge: %v", err)
	}

	select {
	case err := <-recorder.unavailable:
		if status.FromCode(err) != status.CodeNotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no egress outcome delivered")
	}

	if _, err := m.GetEgressSessionDetails(); err == nil {
		t.Fatal("expected no stored descriptor after failure")
	}
}

func TestIpSecRequestCarriesKeyMaterialAndRekeyFlag(t *testing.T) {
	fetcher := &fakeFetcher{response: ppn.HttpResponse{Code: 200, JSONBody: []byte(sampleResponse)}}
	m, recorder, queue := newManager(fetcher)
	defer queue.Close()

	err := m.GetEgressNodeForPpnIpSec(ppn.PpnRequestParams{
		AuthResult:      &ppn.AuthResult{JWTToken: "signed"},
		ClientPublicKey: make([]byte, 32),
		ClientNonce:     make([]byte, 16),
		DownlinkSPI:     77,
		Suite:           ppn.SuiteAes256Gcm,
		IsRekey:         true,
	})
	if err != nil {
		t.Fatalf("GetEgressNodeForPpnIpSec: %v", err)
	}

	select {
	case isRekey := <-recorder.available:
		if !isRekey {
			t.Fatal("expected rekey flag to round-trip")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no egress outcome delivered")
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	var sent map[string]any
	if err := json.Unmarshal(fetcher.bodies[0], &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent["downlink_spi"] != float64(77) {
		t.Fatalf("expected downlink_spi 77, got %v", sent["downlink_spi"])
	}
	if sent["suite"] != "aes256-gcm" {
		t.Fatalf("expected aes256-gcm suite, got %v", sent["suite"])
	}
	if sent["is_rekey"] != true {
		t.Fatal("expected is_rekey true")
	}
}

func TestSaveEgressDetails(t *testing.T) {
	m, _, queue := newManager(&fakeFetcher{})
	defer queue.Close()

	want := &ppn.EgressDescriptor{UplinkSPI: 9}
	m.SaveEgressDetails(want)

	got, err := m.GetEgressSessionDetails()
	if err != nil {
		t.Fatalf("GetEgressSessionDetails: %v", err)
	}
	if got != want {
		t.Fatal("expected the saved descriptor")
	}
}
