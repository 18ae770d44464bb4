package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

func TestUpdateTracksLatestEventPerDevice(t *testing.T) {
	m := New(nil)
	m.width, m.height = 80, 24

	mac := [6]byte{0x00, 0x0C, 0x42, 0x01, 0x02, 0x03}
	updated, _ := m.Update(EventMsg(netinstall.StatusEvent{
		Device: netinstall.DeviceInfo{MAC: mac, Model: "RB750"},
		Phase:  protocol.PhaseFileBody, FileName: "firmware.npk", FileSent: 512, FileTotal: 2500,
	}))
	m = updated.(Model)

	row, ok := m.rows[netinstall.FormatMAC(mac)]
	if !ok {
		t.Fatal("expected a row for the device's MAC")
	}
	if row.phase != protocol.PhaseFileBody || row.fileSent != 512 {
		t.Errorf("row = %+v, unexpected", row)
	}

	updated, _ = m.Update(EventMsg(netinstall.StatusEvent{
		Device: netinstall.DeviceInfo{MAC: mac, Model: "RB750"},
		Phase:  protocol.PhaseDone,
	}))
	m = updated.(Model)

	if m.rows[netinstall.FormatMAC(mac)].phase != protocol.PhaseDone {
		t.Errorf("row not updated to PhaseDone: %+v", m.rows[netinstall.FormatMAC(mac)])
	}
}

func TestUpdateQuitsOnKeyQ(t *testing.T) {
	m := New(nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command for key 'q'")
	}
}

func TestRenderRowPicksStyleByPhase(t *testing.T) {
	done := renderRow(deviceRow{mac: "aa", phase: protocol.PhaseDone})
	aborted := renderRow(deviceRow{mac: "bb", phase: protocol.PhaseAborted})
	if done == aborted {
		t.Error("expected different styling for Done vs Aborted rows")
	}
}
