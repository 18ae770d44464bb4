package statusfeed

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

func TestServeDialRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.sock")

	srv, err := Serve(path)
	if err != nil {
		t.Fatalf("Serve() failed: %v", err)
	}
	defer srv.Close()

	events, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}

	// Give the server's accept loop a moment to register the client
	// before publishing, since Publish fans out only to connections
	// already in the listener map.
	deadline := time.After(2 * time.Second)
	for {
		srv.mu.Lock()
		n := len(srv.listeners)
		srv.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("server never registered the dialed client")
		case <-time.After(10 * time.Millisecond):
		}
	}

	want := netinstall.StatusEvent{
		Device:    netinstall.DeviceInfo{Model: "RB750"},
		Phase:     protocol.PhaseFileBody,
		FileName:  "firmware.npk",
		FileSent:  1024,
		FileTotal: 2500,
	}
	srv.Publish(want)

	select {
	case got := <-events:
		if got.Device.Model != want.Device.Model || got.Phase != want.Phase ||
			got.FileName != want.FileName || got.FileSent != want.FileSent || got.FileTotal != want.FileTotal {
			t.Errorf("got = %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received published event")
	}
}

func TestDialUnreachableSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.sock")
	if _, err := Dial(path); err == nil {
		t.Fatal("Dial() succeeded against a nonexistent socket")
	}
}
