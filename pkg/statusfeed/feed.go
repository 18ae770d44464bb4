// Package statusfeed carries StatusEvents from a running supervisor
// to any number of "watch" clients over a Unix domain socket. The
// feed is purely observational: nothing published here ever affects
// protocol timing, and nothing is persisted across a restart.
package statusfeed

import (
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

// wireEvent is the JSON shape written to the socket, one object per
// line.
type wireEvent struct {
	MAC       string `json:"mac"`
	Model     string `json:"model,omitempty"`
	Phase     string `json:"phase"`
	FileName  string `json:"file_name,omitempty"`
	FileSent  int64  `json:"file_sent,omitempty"`
	FileTotal int64  `json:"file_total,omitempty"`
	Message   string `json:"message,omitempty"`
}

func toWire(ev netinstall.StatusEvent) wireEvent {
	return wireEvent{
		MAC:       netinstall.FormatMAC(ev.Device.MAC),
		Model:     ev.Device.Model,
		Phase:     string(ev.Phase),
		FileName:  ev.FileName,
		FileSent:  ev.FileSent,
		FileTotal: ev.FileTotal,
		Message:   ev.Message,
	}
}

func fromWire(we wireEvent) netinstall.StatusEvent {
	var mac [6]byte
	if hw, err := net.ParseMAC(we.MAC); err == nil && len(hw) == len(mac) {
		copy(mac[:], hw)
	}
	return netinstall.StatusEvent{
		Device:    netinstall.DeviceInfo{MAC: mac, Model: we.Model},
		Phase:     protocol.Phase(we.Phase),
		FileName:  we.FileName,
		FileSent:  we.FileSent,
		FileTotal: we.FileTotal,
		Message:   we.Message,
	}
}

// Server accepts watch clients on a Unix domain socket and fans out
// every published StatusEvent to each of them.
type Server struct {
	ln net.Listener

	mu        sync.Mutex
	listeners map[net.Conn]chan netinstall.StatusEvent
}

// Serve removes any stale socket at path and starts accepting watch
// clients on it.
func Serve(path string) (*Server, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, listeners: make(map[net.Conn]chan netinstall.StatusEvent)}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		ch := make(chan netinstall.StatusEvent, 16)
		s.mu.Lock()
		s.listeners[conn] = ch
		s.mu.Unlock()
		go s.serveConn(conn, ch)
	}
}

func (s *Server) serveConn(conn net.Conn, ch chan netinstall.StatusEvent) {
	defer func() {
		s.mu.Lock()
		delete(s.listeners, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	enc := json.NewEncoder(conn)
	for ev := range ch {
		if err := enc.Encode(toWire(ev)); err != nil {
			return
		}
	}
}

// Publish fans ev out to every connected watch client. A client that
// falls behind simply misses events rather than blocking the caller.
func (s *Server) Publish(ev netinstall.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops accepting new watch clients. Already-connected clients
// see their stream end.
func (s *Server) Close() error {
	s.mu.Lock()
	for conn := range s.listeners {
		conn.Close()
	}
	s.mu.Unlock()
	return s.ln.Close()
}

// Dial connects to a running Server's socket and returns a channel of
// decoded StatusEvents. The channel closes when the server disconnects
// or the feed becomes unreadable.
func Dial(path string) (<-chan netinstall.StatusEvent, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}

	ch := make(chan netinstall.StatusEvent, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		dec := json.NewDecoder(conn)
		for {
			var we wireEvent
			if err := dec.Decode(&we); err != nil {
				return
			}
			ch <- fromWire(we)
		}
	}()
	return ch, nil
}
