// Package egress negotiates the tunnel endpoint with the provisioning
// backend and retains the resulting descriptor for the session's lifetime.
package egress

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/status"
	"ppn/infrastructure/looper"
)

type bridgeRequest struct {
	JWTToken string `json:"jwt_token"`
}

type ipSecRequest struct {
	JWTToken        string `json:"jwt_token"`
	ClientPublicKey string `json:"client_public_value"`
	ClientNonce     string `json:"client_nonce"`
	DownlinkSPI     uint32 `json:"downlink_spi"`
	Suite           string `json:"suite"`
	IsRekey         bool   `json:"is_rekey"`
	PreviousGateway string `json:"previous_uplink_gateway,omitempty"`
}

type Manager struct {
	egressURL string
	fetcher   ppn.HttpFetcher
	queue     *looper.Looper
	log       logging.Logger

	mu           sync.Mutex
	notification ppn.EgressNotification
	descriptor   *ppn.EgressDescriptor
}

func NewManager(egressURL string, fetcher ppn.HttpFetcher, queue *looper.Looper, log logging.Logger) *Manager {
	return &Manager{
		egressURL: egressURL,
		fetcher:   fetcher,
		queue:     queue,
		log:       log,
	}
}

func (m *Manager) RegisterNotificationHandler(notification ppn.EgressNotification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notification = notification
}

// GetEgressNodeForBridge requests a bridge-dataplane egress node. Argument
// errors surface synchronously; the exchange outcome arrives through the
// registered notification.
func (m *Manager) GetEgressNodeForBridge(authResult *ppn.AuthResult) error {
	if authResult == nil || authResult.JWTToken == "" {
		return status.InvalidArgument("bridge egress request without auth result")
	}
	body, err := json.Marshal(bridgeRequest{JWTToken: authResult.JWTToken})
	if err != nil {
		return status.Internal(fmt.Sprintf("encode bridge request: %v", err))
	}
	go m.negotiate(body, false)
	return nil
}

// GetEgressNodeForPpnIpSec requests a direct-IPsec egress node carrying the
// local key material.
func (m *Manager) GetEgressNodeForPpnIpSec(params ppn.PpnRequestParams) error {
	if params.AuthResult == nil || params.AuthResult.JWTToken == "" {
		return status.InvalidArgument("ipsec egress request without auth result")
	}
	if len(params.ClientPublicKey) == 0 {
		return status.InvalidArgument("ipsec egress request without client public key")
	}
	body, err := json.Marshal(ipSecRequest{
		JWTToken:        params.AuthResult.JWTToken,
		ClientPublicKey: base64.StdEncoding.EncodeToString(params.ClientPublicKey),
		ClientNonce:     base64.StdEncoding.EncodeToString(params.ClientNonce),
		DownlinkSPI:     params.DownlinkSPI,
		Suite:           params.Suite.String(),
		IsRekey:         params.IsRekey,
		PreviousGateway: params.PreviousUplinkGW,
	})
	if err != nil {
		return status.Internal(fmt.Sprintf("encode ipsec request: %v", err))
	}
	go m.negotiate(body, params.IsRekey)
	return nil
}

// GetEgressSessionDetails returns the current descriptor.
func (m *Manager) GetEgressSessionDetails() (*ppn.EgressDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.descriptor == nil {
		return nil, status.FailedPrecondition("no egress negotiation completed")
	}
	return m.descriptor, nil
}

// SaveEgressDetails installs a descriptor directly, bypassing negotiation.
// Used by tests and by session-resume paths.
func (m *Manager) SaveEgressDetails(descriptor *ppn.EgressDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptor = descriptor
}

func (m *Manager) negotiate(body []byte, isRekey bool) {
	descriptor, err := m.fetch(body)
	if err != nil {
		m.log.Printf("egress negotiation failed: %v", err)
		m.queue.Post(func() { m.handler().EgressUnavailable(err) })
		return
	}

	m.mu.Lock()
	m.descriptor = descriptor
	m.mu.Unlock()
	m.queue.Post(func() { m.handler().EgressAvailable(isRekey) })
}

func (m *Manager) fetch(body []byte) (*ppn.EgressDescriptor, error) {
	resp, err := m.fetcher.PostJSON(m.egressURL, body)
	if err != nil {
		return nil, status.Unavailable(err.Error())
	}
	if statusErr := status.FromHTTPCode(resp.Code, resp.Message); statusErr != nil {
		return nil, statusErr
	}
	descriptor, err := DecodeResponse(resp.JSONBody)
	if err != nil {
		return nil, status.Internal(err.Error())
	}
	return descriptor, nil
}

func (m *Manager) handler() ppn.EgressNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notification == nil {
		panic("egress manager used without a notification handler")
	}
	return m.notification
}
