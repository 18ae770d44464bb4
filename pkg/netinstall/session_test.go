package netinstall

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

// fakeDevice plays the device side of the protocol against a Session
// under test: it replies to exactly the requests the real firmware
// would, in the order the state machine expects them.
type fakeDevice struct {
	t       *testing.T
	conn    *Transport
	peerMAC [6]byte
	counter uint16
}

func (d *fakeDevice) recv() protocol.Frame {
	d.t.Helper()
	frame, _, err := d.conn.Recv()
	if err != nil {
		d.t.Fatalf("fake device recv: %v", err)
	}
	return frame
}

func (d *fakeDevice) reply(ack protocol.Frame, payload []byte) {
	d.t.Helper()
	d.counter++
	if err := d.conn.Send(payload, d.counter, ack.CounterB, d.peerMAC); err != nil {
		d.t.Fatalf("fake device send: %v", err)
	}
}

type scriptedFile struct {
	name string
	size int64
}

func newReadCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}

func runFakeDevice(t *testing.T, tr *Transport, peerMAC [6]byte, files []scriptedFile, done chan<- struct{}) {
	go func() {
		d := &fakeDevice{t: t, conn: tr, peerMAC: peerMAC}

		f := d.recv()
		d.reply(f, protocol.TokenYACK)

		f = d.recv()
		d.reply(f, protocol.TokenSTRT)

		f = d.recv()
		d.reply(f, protocol.TokenRETR)

		for _, file := range files {
			f = d.recv() // FileHeader
			d.reply(f, protocol.TokenRETR)

			var got int64
			for got < file.size {
				f = d.recv()
				got += int64(len(f.Payload))
			}
			d.reply(f, protocol.TokenRETR) // final chunk ack

			f = d.recv() // PostFile
			d.reply(f, protocol.TokenRETR)
		}

		f = d.recv() // Finalize
		d.reply(f, protocol.TokenWTRM)

		d.recv() // Reboot, no reply expected
		close(done)
	}()
}

func TestSessionRunHappyPath(t *testing.T) {
	sessionMAC := [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	devMAC := [6]byte{0x00, 0x0C, 0x42, 0x01, 0x02, 0x03}

	sessionTr, sessionAddr := loopbackTransport(t, sessionMAC)
	defer sessionTr.Close()
	devTr, devAddr := loopbackTransport(t, devMAC)
	defer devTr.Close()
	sessionTr.timeout = 50 * time.Millisecond
	devTr.timeout = 2 * time.Second
	_ = sessionAddr
	_ = devAddr

	firmware := append(append([]byte{}, protocol.NPKMagic[:]...), make([]byte, 2500-len(protocol.NPKMagic))...)
	extra := make([]byte, 500)
	config := []byte("/ip address add address=192.168.88.1/24")

	dev := DeviceInfo{MAC: devMAC, LicenseKey: "secretkey", Model: "RB750", Arch: "arm", MinOS: "6.45"}
	s := NewSession(sessionTr, dev)
	s.SetChunkSleep(time.Millisecond)

	files := []scriptedFile{
		{name: "firmware.npk", size: int64(len(firmware))},
		{name: "extra.npk", size: int64(len(extra))},
		{name: protocol.AutorunScriptName, size: int64(len(config))},
	}
	done := make(chan struct{})
	runFakeDevice(t, devTr, sessionMAC, files, done)

	firmwareSpec := FileSpec{Name: "firmware.npk", Size: int64(len(firmware)), Reader: newReadCloser(firmware)}
	extraSpec := FileSpec{Name: "extra.npk", Size: int64(len(extra)), Reader: newReadCloser(extra)}
	configSpec := FileSpec{Name: "autorun.scr", Size: int64(len(config)), Reader: newReadCloser(config)}

	runErr := s.Run(firmwareSpec, []FileSpec{extraSpec}, &configSpec)
	if runErr != nil {
		t.Fatalf("Run() failed: %v", runErr)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake device never observed Reboot")
	}
}

func TestSessionRunAbortsOnBadNPKMagic(t *testing.T) {
	sessionMAC := [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	devMAC := [6]byte{0x00, 0x0C, 0x42, 0x01, 0x02, 0x03}

	sessionTr, sessionAddr := loopbackTransport(t, sessionMAC)
	defer sessionTr.Close()
	devTr, _ := loopbackTransport(t, devMAC)
	defer devTr.Close()
	_ = sessionAddr

	done := make(chan struct{})
	go func() {
		d := &fakeDevice{t: t, conn: devTr, peerMAC: sessionMAC}
		f := d.recv()
		d.reply(f, protocol.TokenYACK)
		close(done)
	}()

	dev := DeviceInfo{MAC: devMAC, LicenseKey: "key"}
	s := NewSession(sessionTr, dev)

	bad := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x02}
	firmwareSpec := FileSpec{Name: "firmware.npk", Size: int64(len(bad)), Reader: newReadCloser(bad)}

	err := s.Run(firmwareSpec, nil, nil)
	if err == nil {
		t.Fatal("Run() succeeded, want abort on bad NPK magic")
	}
	var abortErr *AbortError
	if !asAbortError(err, &abortErr) {
		t.Fatalf("Run() err = %v, want *AbortError", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake device never received Offer")
	}
}

func TestSessionUploadBodyExactMultipleEmitsNoTrailingChunk(t *testing.T) {
	sessionMAC := [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	devMAC := [6]byte{0x00, 0x0C, 0x42, 0x01, 0x02, 0x03}

	sessionTr, _ := loopbackTransport(t, sessionMAC)
	defer sessionTr.Close()
	devTr, _ := loopbackTransport(t, devMAC)
	defer devTr.Close()
	sessionTr.timeout = 50 * time.Millisecond

	dev := DeviceInfo{MAC: devMAC, LicenseKey: "key"}
	s := NewSession(sessionTr, dev)
	s.SetChunkSleep(time.Millisecond)

	data := make([]byte, 2048) // exactly two full chunks
	spec := FileSpec{Name: "f.bin", Size: int64(len(data)), Reader: newReadCloser(data)}

	var chunkCount int
	done := make(chan struct{})
	go func() {
		d := &fakeDevice{t: t, conn: devTr, peerMAC: sessionMAC}
		var got int64
		var last protocol.Frame
		for got < spec.Size {
			last = d.recv()
			chunkCount++
			got += int64(len(last.Payload))
		}
		d.reply(last, protocol.TokenRETR)
		close(done)
	}()

	if err := s.uploadBody(spec); err != nil {
		t.Fatalf("uploadBody() failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake device never saw the final chunk")
	}

	if chunkCount != 2 {
		t.Errorf("chunkCount = %d, want 2 (no trailing empty chunk for an exact multiple of 1024)", chunkCount)
	}
}

func asAbortError(err error, target **AbortError) bool {
	if ae, ok := err.(*AbortError); ok {
		*target = ae
		return true
	}
	return false
}
