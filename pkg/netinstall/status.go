package netinstall

import "github.com/netboot-tools/pynetinstall/pkg/protocol"

// StatusEvent is a progress milestone published by a session for
// operator-facing consumers (Supervisor.OnStatus, which the CLI wires
// to the status feed read by the watch TUI). It is
// never part of the wire protocol and has no effect on its timing.
type StatusEvent struct {
	Device      DeviceInfo
	Phase       protocol.Phase
	FileName    string
	FileSent    int64
	FileTotal   int64
	Message     string
}

// statusSink publishes StatusEvents without ever blocking the caller.
// A full or absent subscriber simply misses updates: protocol timing
// must never depend on a slow consumer draining this channel.
type statusSink struct {
	ch chan StatusEvent
}

func newStatusSink(buffer int) *statusSink {
	return &statusSink{ch: make(chan StatusEvent, buffer)}
}

func (s *statusSink) publish(ev StatusEvent) {
	if s == nil {
		return
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Events returns the channel consumers should range over.
func (s *statusSink) Events() <-chan StatusEvent {
	return s.ch
}
