// Package client runs the tunnel client until the context is cancelled.
package client

import (
	"context"
	"fmt"
	"time"

	appLogging "ppn/application/logging"
	"ppn/application/ppn"
	"ppn/domain/network"
	"ppn/infrastructure/PAL"
	"ppn/infrastructure/PAL/vpnservice"
	"ppn/infrastructure/client"
	"ppn/infrastructure/controlplane/auth"
	"ppn/infrastructure/dataplane/bridge"
	"ppn/infrastructure/logging"
	"ppn/infrastructure/settings"
	"ppn/infrastructure/telemetry/trafficstats"
	"ppn/presentation/configuration"
	"ppn/presentation/ui"
)

type tunnelClient interface {
	ui.StatusProvider
	Start()
	Stop()
	SetNetwork(networkInfo *network.NetworkInfo)
}

type Runner struct {
	conf        configuration.Configuration
	interactive bool
	log         appLogging.Logger

	newClient    func(conf configuration.Configuration, log appLogging.Logger, stats *trafficstats.Collector) (tunnelClient, error)
	runDashboard func(provider ui.StatusProvider, stats *trafficstats.Collector) error
}

func NewRunner(conf configuration.Configuration, interactive bool) *Runner {
	return &Runner{
		conf:         conf,
		interactive:  interactive,
		log:          logging.NewLogLogger("client: "),
		newClient:    buildClient,
		runDashboard: ui.Run,
	}
}

// Run connects and blocks until ctx is cancelled or, in interactive mode,
// the dashboard exits. Reconnects are handled inside the client.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := trafficstats.NewCollector(time.Second, 0.3)
	go stats.Start(ctx)

	tunnel, err := r.newClient(r.conf, r.log, stats)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	defer tunnel.Stop()

	tunnel.SetNetwork(&network.NetworkInfo{ID: 1, Type: network.TypeEthernet})
	tunnel.Start()

	if r.interactive {
		done := make(chan error, 1)
		go func() { done <- r.runDashboard(tunnel, stats) }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

func buildClient(conf configuration.Configuration, log appLogging.Logger,
	stats *trafficstats.Collector) (tunnelClient, error) {
	if conf.Dataplane == settings.DataplaneIpSec {
		return nil, fmt.Errorf("ipsec dataplane needs the platform IPsec stack, only bridge is built in")
	}

	var tokens ppn.TokenProvider
	if conf.TokenFile != "" {
		tokens = auth.NewFileTokens(conf.TokenFile)
	} else {
		tokens = auth.NewStaticTokens(conf.OAuthToken)
	}

	return client.New(conf.Settings, client.PlatformDeps{
		VpnService: vpnservice.NewService(PAL.NewExecCommander()),
		NewDatapath: func() (ppn.Datapath, error) {
			return bridge.NewDatapath(logging.NewLogLogger("bridge: "), stats), nil
		},
		Tokens:       tokens,
		Notification: newLogNotifier(log),
		Log:          log,
	})
}
