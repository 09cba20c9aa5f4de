// Package ui renders the interactive client status dashboard.
package ui

import (
	"fmt"
	"strings"
	"time"

	"ppn/infrastructure/client"
	"ppn/infrastructure/telemetry"
	"ppn/infrastructure/telemetry/trafficstats"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// StatusProvider is the slice of the client the dashboard polls. Collected
// telemetry deltas are accumulated inside the model, so the dashboard owns
// the counters while it runs.
type StatusProvider interface {
	GetDebugInfo() client.DebugSnapshot
	CollectTelemetry() telemetry.Snapshot
}

const defaultRefreshInterval = time.Second

type dashboardKeyMap struct {
	Quit key.Binding
}

func defaultDashboardKeyMap() dashboardKeyMap {
	return dashboardKeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "exit"),
		),
	}
}

type dashboardTickMsg struct {
	seq uint64
}

type Dashboard struct {
	provider      StatusProvider
	stats         *trafficstats.Collector
	keys          dashboardKeyMap
	refresh       time.Duration
	width         int
	height        int
	tickSeq       uint64
	snapshot      client.DebugSnapshot
	totals        telemetry.Snapshot
	traffic       trafficstats.Snapshot
	quitRequested bool
}

// NewDashboard builds the model. stats may be nil when no traffic
// accounting is wired in.
func NewDashboard(provider StatusProvider, stats *trafficstats.Collector) Dashboard {
	model := Dashboard{
		provider: provider,
		stats:    stats,
		keys:     defaultDashboardKeyMap(),
		refresh:  defaultRefreshInterval,
		tickSeq:  1,
	}
	model.refreshSnapshots()
	return model
}

// Run blocks until the user exits the dashboard.
func Run(provider StatusProvider, stats *trafficstats.Collector) error {
	_, err := tea.NewProgram(NewDashboard(provider, stats)).Run()
	return err
}

func (m Dashboard) QuitRequested() bool {
	return m.quitRequested
}

func (m Dashboard) Init() tea.Cmd {
	return dashboardTickCmd(m.refresh, m.tickSeq)
}

func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case dashboardTickMsg:
		if msg.seq != m.tickSeq {
			return m, nil
		}
		m.refreshSnapshots()
		return m, dashboardTickCmd(m.refresh, m.tickSeq)
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitRequested = true
			m.tickSeq++
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Dashboard) View() string {
	var b strings.Builder
	b.WriteString("ppn client\n\n")
	b.WriteString(fmt.Sprintf("  State:                    %s\n", m.snapshot.State))
	b.WriteString(fmt.Sprintf("  Session restarts:         %d\n", m.snapshot.SessionRestartCounter))
	b.WriteString(fmt.Sprintf("  Control plane failures:   %d (successive %d)\n",
		m.totals.ControlPlaneFailures, m.snapshot.SuccessiveControlPlaneFailures))
	b.WriteString(fmt.Sprintf("  Data plane failures:      %d (successive %d)\n",
		m.totals.DataPlaneFailures, m.snapshot.SuccessiveDataPlaneFailures))
	b.WriteString(fmt.Sprintf("  Network switches:         %d\n", m.totals.NetworkSwitches))
	b.WriteString(fmt.Sprintf("  Successful rekeys:        %d\n", m.totals.SuccessfulRekeys))
	if m.stats != nil {
		b.WriteString(fmt.Sprintf("  Uplink:                   %s (%s)\n",
			trafficstats.FormatTotal(m.traffic.UplinkBytesTotal), trafficstats.FormatRate(m.traffic.UplinkRate)))
		b.WriteString(fmt.Sprintf("  Downlink:                 %s (%s)\n",
			trafficstats.FormatTotal(m.traffic.DownlinkBytesTotal), trafficstats.FormatRate(m.traffic.DownlinkRate)))
	}
	b.WriteString("\n  " + m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc + "\n")
	return b.String()
}

func (m *Dashboard) refreshSnapshots() {
	m.snapshot = m.provider.GetDebugInfo()
	m.accumulate(m.provider.CollectTelemetry())
	if m.stats != nil {
		m.traffic = m.stats.Snapshot()
	}
}

func (m *Dashboard) accumulate(delta telemetry.Snapshot) {
	m.totals.ControlPlaneFailures += delta.ControlPlaneFailures
	m.totals.DataPlaneFailures += delta.DataPlaneFailures
	m.totals.SessionRestarts += delta.SessionRestarts
	m.totals.NetworkSwitches += delta.NetworkSwitches
	m.totals.SuccessfulRekeys += delta.SuccessfulRekeys
}

func dashboardTickCmd(interval time.Duration, seq uint64) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return dashboardTickMsg{seq: seq}
	})
}
