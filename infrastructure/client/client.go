// Package client assembles the full tunnel client: settings, event queue,
// timers, control-plane collaborators, key exchange, the session state
// machine and the reconnector that keeps it alive.
package client

import (
	"fmt"

	"ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/infrastructure/controlplane/auth"
	"ppn/infrastructure/controlplane/egress"
	"ppn/infrastructure/controlplane/httpclient"
	"ppn/infrastructure/cryptography/keyexchange"
	"ppn/infrastructure/looper"
	"ppn/infrastructure/session"
	"ppn/infrastructure/settings"
	"ppn/infrastructure/telemetry"
	"ppn/infrastructure/timers"
)

// PlatformDeps are the pieces the host platform supplies. VpnService,
// NewDatapath and Tokens are required; everything else has a default.
type PlatformDeps struct {
	VpnService ppn.VpnService
	// NewDatapath builds a fresh datapath per session.
	NewDatapath func() (ppn.Datapath, error)
	Tokens      ppn.TokenProvider

	Fetcher      ppn.HttpFetcher
	TimerService ppn.TimerService
	// Notification receives life-cycle events after the reconnector has
	// acted on them. Optional.
	Notification ppn.SessionNotification
	Log          logging.Logger
}

type Client struct {
	cfg         settings.Settings
	queue       *looper.Looper
	metrics     *telemetry.Collector
	reconnector *Reconnector
}

func New(cfg settings.Settings, deps PlatformDeps) (*Client, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if deps.VpnService == nil || deps.NewDatapath == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("missing platform dependency")
	}
	if deps.Fetcher == nil {
		deps.Fetcher = httpclient.NewFetcher()
	}
	if deps.TimerService == nil {
		deps.TimerService = timers.NewSystemTimerService()
	}

	queue := looper.New()
	manager := timers.NewManager(deps.TimerService)
	metrics := telemetry.NewCollector()

	factory := func() (ManagedSession, error) {
		keys, err := keyexchange.NewSession()
		if err != nil {
			return nil, fmt.Errorf("key exchange: %w", err)
		}
		datapath, err := deps.NewDatapath()
		if err != nil {
			return nil, fmt.Errorf("datapath: %w", err)
		}
		return session.NewSession(cfg, session.Deps{
			Auth: auth.NewAuthenticator(cfg.AuthURL, cfg.ServiceType,
				deps.Fetcher, deps.Tokens, queue, deps.Log),
			Egress:     egress.NewManager(cfg.EgressURL, deps.Fetcher, queue, deps.Log),
			Datapath:   datapath,
			VpnService: deps.VpnService,
			Timers:     manager,
			Keys:       keys,
			NewKeys: func() (session.KeyMaterial, error) {
				return keyexchange.NewSession()
			},
			Queue:   queue,
			Log:     deps.Log,
			Metrics: metrics,
		}), nil
	}

	reconnector := NewReconnector(Deps{
		Queue:      queue,
		Timers:     manager,
		NewSession: factory,
		Metrics:    metrics,
		Forward:    deps.Notification,
		Log:        deps.Log,
	})

	return &Client{
		cfg:         cfg,
		queue:       queue,
		metrics:     metrics,
		reconnector: reconnector,
	}, nil
}

// Start connects. Progress is reported through the notification handler.
func (c *Client) Start() { c.reconnector.Start() }

// Stop disconnects and releases every owned resource. The client is
// unusable afterwards.
func (c *Client) Stop() {
	c.reconnector.Stop()
	c.queue.Close()
}

// SetNetwork reports an OS network change. A nil networkInfo means no
// network is available.
func (c *Client) SetNetwork(networkInfo *network.NetworkInfo) {
	c.reconnector.SetNetwork(networkInfo)
}

// Rekey forces a key rotation on the live session.
func (c *Client) Rekey() { c.reconnector.Rekey() }

// CollectTelemetry drains the accumulated counters.
func (c *Client) CollectTelemetry() telemetry.Snapshot { return c.metrics.Collect() }

func (c *Client) GetDebugInfo() DebugSnapshot { return c.reconnector.GetDebugInfo() }
