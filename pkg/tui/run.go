package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
)

// Run starts the watch dashboard in the current terminal, rendering
// events until the feed closes or the operator quits.
func Run(events <-chan netinstall.StatusEvent) error {
	_, err := tea.NewProgram(New(events), tea.WithAltScreen()).Run()
	return err
}
