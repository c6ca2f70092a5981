// Package monitor is the live GPS position display: a small bubbletea
// program fed by the reader's latest-fix channel. It is a pure consumer.
// If it falls behind, intermediate fixes are dropped upstream and only the
// newest is shown, which is exactly what a position display wants.
package monitor

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pelagis-survey/pelagis/internal/gps"
)

// fixMsg is sent when the reader delivers a new fix.
type fixMsg gps.Fix

// statusTickMsg refreshes the link badge between fixes.
type statusTickMsg struct{}

// Model is the monitor's bubbletea model.
type Model struct {
	reader *gps.Reader

	fix    *gps.Fix
	online bool
	port   string

	spinner spinner.Model
	width   int
}

// NewModel wires the monitor to a running reader.
func NewModel(reader *gps.Reader) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{reader: reader, spinner: s}
}

// Init starts the spinner, the fix wait and the status ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForFix(), statusTick())
}

// Update handles fixes, ticks and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case fixMsg:
		fix := gps.Fix(msg)
		m.fix = &fix
		m.online = m.reader.Online()
		m.port = m.reader.PortName()
		return m, m.waitForFix()

	case statusTickMsg:
		m.online = m.reader.Online()
		m.port = m.reader.PortName()
		return m, statusTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the fix panel, or the autodetection spinner while no port is
// connected yet.
func (m Model) View() string {
	title := titleStyle.Render("Pelagis GPS monitor")

	if m.port == "" && m.fix == nil {
		return fmt.Sprintf("%s\n\n %s Searching for GPS receiver...\n%s",
			title, m.spinner.View(), helpStyle.Render("q: quit"))
	}

	badge := offlineStyle.Render("OFFLINE")
	if m.online {
		badge = onlineStyle.Render("ONLINE")
	}

	body := row("Port", m.port) +
		row("Latitude", coord(m.fix, func(f gps.Fix) float64 { return f.Latitude })) +
		row("Longitude", coord(m.fix, func(f gps.Fix) float64 { return f.Longitude })) +
		row("Speed", optValue(m.fix, func(f gps.Fix) *float64 { return f.SpeedKnots }, "kn")) +
		row("Course", optValue(m.fix, func(f gps.Fix) *float64 { return f.CourseDeg }, "°")) +
		row("Fix time", fixClock(m.fix))

	return fmt.Sprintf("%s  %s\n\n%s\n%s",
		title, badge, paneStyle.Render(body), helpStyle.Render("q: quit"))
}

func (m Model) waitForFix() tea.Cmd {
	return func() tea.Msg {
		fix, ok := <-m.reader.Fixes()
		if !ok {
			// Reader shut down; stop re-arming.
			return nil
		}
		return fixMsg(fix)
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s\n",
		labelStyle.Render(fmt.Sprintf("%-10s", label)),
		valueStyle.Render(value))
}

func coord(fix *gps.Fix, get func(gps.Fix) float64) string {
	if fix == nil {
		return "—"
	}
	return fmt.Sprintf("%.5f°", get(*fix))
}

func optValue(fix *gps.Fix, get func(gps.Fix) *float64, unit string) string {
	if fix == nil {
		return "—"
	}
	v := get(*fix)
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.1f %s", *v, unit)
}

func fixClock(fix *gps.Fix) string {
	if fix == nil {
		return "—"
	}
	return fix.Clock() + " UTC"
}
