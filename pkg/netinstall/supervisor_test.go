package netinstall

import (
	"context"
	"testing"
	"time"

	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

type fixedResolver struct {
	firmware FileSpec
	extras   []FileSpec
	config   *FileSpec
	err      error
}

func (r fixedResolver) Resolve(DeviceInfo) (FileSpec, []FileSpec, *FileSpec, error) {
	return r.firmware, r.extras, r.config, r.err
}

func TestSupervisorRunOneshotCompletesAfterOneSession(t *testing.T) {
	sessionMAC := [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	devMAC := [6]byte{0x00, 0x0C, 0x42, 0x01, 0x02, 0x03}

	sessionTr, sessionAddr := loopbackTransport(t, sessionMAC)
	defer sessionTr.Close()
	sessionTr.timeout = 2 * time.Second
	devTr, _ := loopbackTransport(t, devMAC)
	defer devTr.Close()

	firmware := append(append([]byte{}, protocol.NPKMagic[:]...), 0x01, 0x02)

	done := make(chan struct{})
	go func() {
		discPayload := []byte("ignored\nLIC\nsecretkey\nRB750\narm\n6.45\n")
		discFrame, err := protocol.Encode(devMAC, sessionMAC, 1, 0, discPayload)
		if err != nil {
			t.Errorf("Encode() discovery frame: %v", err)
			return
		}
		if _, err := devTr.conn.WriteToUDP(discFrame, sessionAddr); err != nil {
			t.Errorf("WriteToUDP() discovery frame: %v", err)
			return
		}
		runFakeDevice(t, devTr, sessionMAC, []scriptedFile{{name: "firmware.npk", size: int64(len(firmware))}}, done)
	}()

	sup := &Supervisor{
		Transport: sessionTr,
		Resolver: fixedResolver{
			firmware: FileSpec{Name: "firmware.npk", Size: int64(len(firmware)), Reader: newReadCloser(firmware)},
		},
		Oneshot: true,
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(context.Background()) }()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() never returned in oneshot mode")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fake device never completed the session")
	}
}

func TestSupervisorRunPropagatesFatalError(t *testing.T) {
	sessionMAC := [6]byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	devMAC := [6]byte{0x00, 0x0C, 0x42, 0x01, 0x02, 0x03}

	sessionTr, sessionAddr := loopbackTransport(t, sessionMAC)
	defer sessionTr.Close()
	sessionTr.timeout = 2 * time.Second
	devTr, _ := loopbackTransport(t, devMAC)
	defer devTr.Close()

	go func() {
		discPayload := []byte("ignored\nLIC\nsecretkey\nRB750\narm\n6.45\n")
		discFrame, err := protocol.Encode(devMAC, sessionMAC, 1, 0, discPayload)
		if err != nil {
			t.Errorf("Encode() discovery frame: %v", err)
			return
		}
		devTr.conn.WriteToUDP(discFrame, sessionAddr)
	}()

	wantErr := &FatalError{Reason: "no plugin configured"}
	sup := &Supervisor{
		Transport: sessionTr,
		Resolver:  fixedResolver{err: wantErr},
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(context.Background()) }()

	select {
	case err := <-runErr:
		if err != wantErr {
			t.Fatalf("Run() = %v, want %v", err, wantErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() never propagated the fatal error")
	}
}
