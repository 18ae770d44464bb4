// Package tui implements the "watch" dashboard: a read-only view of
// every session a running supervisor is driving, fed over a Unix
// socket by pkg/statusfeed. It never talks to the device itself, so a
// slow terminal can never perturb protocol timing.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

// retireDelay is how long a device stays visible in its terminal
// phase (Done or Aborted) before its row is dropped from the table.
const retireDelay = 10 * time.Second

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	styleDone   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleAbort  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleActive = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleFooter = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	fileProgress = progress.New(progress.WithDefaultGradient(), progress.WithWidth(24), progress.WithoutPercentage())
)

// deviceRow is the dashboard's view of one device's most recent
// StatusEvent.
type deviceRow struct {
	mac       string
	model     string
	phase     protocol.Phase
	fileName  string
	fileSent  int64
	fileTotal int64
	message   string
}

// EventMsg wraps one StatusEvent read from the feed channel.
type EventMsg netinstall.StatusEvent

// retireMsg asks the model to drop mac's row if it is still in a
// terminal phase, fired retireDelay after that phase was first seen.
type retireMsg struct{ mac string }

func retireAfter(mac string) tea.Cmd {
	return tea.Tick(retireDelay, func(time.Time) tea.Msg {
		return retireMsg{mac: mac}
	})
}

// Model is the root bubbletea model for the watch dashboard.
type Model struct {
	width, height int

	rows map[string]deviceRow

	events <-chan netinstall.StatusEvent
}

// New builds a Model that renders every event arriving on events,
// keyed by device MAC.
func New(events <-chan netinstall.StatusEvent) Model {
	return Model{rows: make(map[string]deviceRow), events: events}
}

// WaitForEvent returns a tea.Cmd that blocks for the next StatusEvent,
// quitting the program once the feed channel closes.
func WaitForEvent(ch <-chan netinstall.StatusEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return tea.Quit()
		}
		return EventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return WaitForEvent(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case EventMsg:
		ev := netinstall.StatusEvent(msg)
		mac := netinstall.FormatMAC(ev.Device.MAC)
		m.rows[mac] = deviceRow{
			mac:       mac,
			model:     ev.Device.Model,
			phase:     ev.Phase,
			fileName:  ev.FileName,
			fileSent:  ev.FileSent,
			fileTotal: ev.FileTotal,
			message:   ev.Message,
		}
		if ev.Phase.IsTerminal() {
			return m, tea.Batch(WaitForEvent(m.events), retireAfter(mac))
		}
		return m, WaitForEvent(m.events)

	case retireMsg:
		if row, ok := m.rows[msg.mac]; ok && row.phase.IsTerminal() {
			delete(m.rows, msg.mac)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing...\n"
	}

	header := styleHeader.Render(fmt.Sprintf("%-18s %-10s %-12s %-24s %s", "MAC", "MODEL", "PHASE", "FILE", "PROGRESS"))

	macs := make([]string, 0, len(m.rows))
	for mac := range m.rows {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	var lines []string
	lines = append(lines, header)
	for _, mac := range macs {
		lines = append(lines, renderRow(m.rows[mac]))
	}
	if len(macs) == 0 {
		lines = append(lines, styleFooter.Render("waiting for devices..."))
	}

	lines = append(lines, "", styleFooter.Render("q quit"))
	return strings.Join(lines, "\n")
}

func renderRow(r deviceRow) string {
	bar := ""
	if r.fileTotal > 0 {
		bar = fileProgress.ViewAs(float64(r.fileSent) / float64(r.fileTotal))
	}
	if r.message != "" {
		bar = r.message
	}

	line := fmt.Sprintf("%-18s %-10s %-12s %-24s %s", r.mac, r.model, r.phase, r.fileName, bar)
	switch r.phase {
	case protocol.PhaseDone:
		return styleDone.Render(line)
	case protocol.PhaseAborted:
		return styleAbort.Render(line)
	default:
		return styleActive.Render(line)
	}
}
