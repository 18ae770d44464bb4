package netinstall

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

// counterPair is the lock-step counter state the host and device keep
// in sync across the whole session: ours is the last value we sent,
// theirs is the last value we accepted from the device.
type counterPair struct {
	ours, theirs uint16
}

// Session drives one device through the full netinstall handshake
// over a borrowed Transport. It is single-use: create a new Session
// per discovered device.
type Session struct {
	transport  *Transport
	device     DeviceInfo
	counters   counterPair
	phase      protocol.Phase
	maxErrors  int
	chunkSleep time.Duration
	status     *statusSink
}

// NewSession returns a Session ready to run against dev over t. The
// session does not own t; the supervisor keeps it alive across
// sessions.
func NewSession(t *Transport, dev DeviceInfo) *Session {
	return &Session{
		transport:  t,
		device:     dev,
		maxErrors:  protocol.MaxErrors,
		chunkSleep: protocol.DefaultChunkSleepMillis * time.Millisecond,
		status:     newStatusSink(32),
	}
}

// SetChunkSleep overrides the inter-chunk throttle. Mostly useful for
// tests; production code relies on the default.
func (s *Session) SetChunkSleep(d time.Duration) { s.chunkSleep = d }

// Events returns the channel of StatusEvents this session publishes.
// Safe to range over concurrently with Run.
func (s *Session) Events() <-chan StatusEvent { return s.status.Events() }

// Run drives the full Offer through Reboot sequence for firmware,
// any extra packages, and an optional initial configuration script.
// It returns nil on a clean finish and an *AbortError otherwise. Every FileSpec.Reader passed in is closed before Run
// returns, regardless of outcome.
func (s *Session) Run(firmware FileSpec, extras []FileSpec, config *FileSpec) error {
	defer closeFiles(firmware, extras, config)
	s.counters = counterPair{}

	s.setPhase(protocol.PhaseOffer)
	offer := buildOfferPayload(s.device.LicenseKey)
	if err := s.do(offer, protocol.TokenYACK, false); err != nil {
		return s.abort(err)
	}

	// The NPK pre-flight check happens after the device has accepted
	// our offer but strictly before Format (which erases flash), so an
	// unflashable firmware image never costs the device its contents.
	if err := checkNPKMagic(&firmware); err != nil {
		return s.abort(err)
	}

	s.setPhase(protocol.PhaseFormat)
	if err := s.do(nil, protocol.TokenSTRT, false); err != nil {
		return s.abort(err)
	}

	s.setPhase(protocol.PhasePreFile)
	if err := s.do(nil, protocol.TokenRETR, false); err != nil {
		return s.abort(err)
	}

	for _, f := range buildUploadList(firmware, extras, config) {
		if err := s.uploadFile(f); err != nil {
			return s.abort(err)
		}
	}

	s.setPhase(protocol.PhaseFinalize)
	if err := s.do(protocol.TokenFILE, protocol.TokenWTRM, false); err != nil {
		return s.abort(err)
	}

	s.setPhase(protocol.PhaseReboot)
	if err := s.do(protocol.TokenTERM, nil, false); err != nil {
		return s.abort(err)
	}

	s.setPhase(protocol.PhaseDone)
	s.status.publish(StatusEvent{Device: s.device, Phase: protocol.PhaseDone, Message: "installation complete"})
	return nil
}

func buildOfferPayload(licenseKey string) []byte {
	payload := []byte(fmt.Sprintf("OFFR\n%s\n\n\n", licenseKey))
	return append(payload, 0)
}

// buildUploadList orders the files exactly as the wire protocol
// expects them: firmware first, then extra packages in the order
// given, then the initial configuration (if any) renamed to the fixed
// autorun script name.
func buildUploadList(firmware FileSpec, extras []FileSpec, config *FileSpec) []FileSpec {
	list := make([]FileSpec, 0, len(extras)+2)
	list = append(list, firmware)
	list = append(list, extras...)
	if config != nil {
		renamed := *config
		renamed.Name = protocol.AutorunScriptName
		list = append(list, renamed)
	}
	return list
}

// checkNPKMagic verifies f starts with the NPK signature without
// losing the bytes it consumes doing so: f.Reader is rewrapped so the
// upload phase still sees the whole file, byte for byte, from offset
// zero.
func checkNPKMagic(f *FileSpec) error {
	head := make([]byte, len(protocol.NPKMagic))
	n, err := io.ReadFull(f.Reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return &AbortError{Reason: "reading firmware header", Err: err}
	}
	f.Reader = rewrapReader(head[:n], f.Reader)
	if n < len(protocol.NPKMagic) || [4]byte(head) != protocol.NPKMagic {
		return &AbortError{Reason: "firmware does not start with the NPK magic, refusing to erase flash"}
	}
	return nil
}

type multiReadCloser struct {
	r      io.Reader
	closer io.Closer
}

func (m *multiReadCloser) Read(p []byte) (int, error) { return m.r.Read(p) }
func (m *multiReadCloser) Close() error               { return m.closer.Close() }

func rewrapReader(consumed []byte, rest io.ReadCloser) io.ReadCloser {
	return &multiReadCloser{r: io.MultiReader(bytes.NewReader(consumed), rest), closer: rest}
}

// closeFiles closes every reader Run was handed, regardless of how far
// the session got. It is the sole owner of that responsibility: the
// per-file upload path never closes its own reader, so a file is
// closed exactly once whether the session finishes, aborts mid-upload,
// or aborts before the first file is ever reached.
func closeFiles(firmware FileSpec, extras []FileSpec, config *FileSpec) {
	firmware.Reader.Close()
	for _, f := range extras {
		f.Reader.Close()
	}
	if config != nil {
		config.Reader.Close()
	}
}

// uploadFile drives FileHeader, FileBody, and PostFile for a single
// file. The caller owns closing f.Reader.
func (s *Session) uploadFile(f FileSpec) error {
	s.setPhase(protocol.PhaseFileHeader)
	header := []byte(fmt.Sprintf("FILE\n%s\n%d\n", f.Name, f.Size))
	// The device's FileHeader reply has been observed missing on some
	// firmware revisions; a timeout here is tolerated rather than
	// treated as a protocol failure.
	if err := s.do(header, protocol.TokenRETR, true); err != nil {
		return err
	}

	s.setPhase(protocol.PhaseFileBody)
	s.status.publish(StatusEvent{Device: s.device, Phase: protocol.PhaseFileBody, FileName: f.Name, FileTotal: f.Size})
	if err := s.uploadBody(f); err != nil {
		return err
	}

	s.setPhase(protocol.PhasePostFile)
	return s.do(nil, protocol.TokenRETR, false)
}

// uploadBody sends f.Reader in MaxChunkBytes chunks. Every chunk but
// the last is followed by a micro-wait (one blocking, content-ignored
// receive) and a fixed sleep, matching the device's own pace; the
// final chunk — sized len % MaxChunkBytes, or a full MaxChunkBytes
// when the file is an exact multiple, never a trailing empty chunk —
// is followed by the real RETR acknowledgement.
func (s *Session) uploadBody(f FileSpec) error {
	buf := make([]byte, protocol.MaxChunkBytes)
	var sent int64

	for {
		n, err := io.ReadFull(f.Reader, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return &AbortError{Reason: "reading file body", Err: err}
		}
		chunk := buf[:n]
		sent += int64(n)
		isFinal := sent >= f.Size

		s.counters.ours++
		if sendErr := s.transport.Send(chunk, s.counters.theirs, s.counters.ours, s.device.MAC); sendErr != nil {
			return &AbortError{Reason: "sending file chunk", Err: sendErr}
		}
		s.status.publish(StatusEvent{Device: s.device, Phase: protocol.PhaseFileBody, FileName: f.Name, FileSent: sent, FileTotal: f.Size})

		if isFinal {
			frame, waitErr := s.waitInSync()
			if waitErr != nil {
				return waitErr
			}
			s.counters.theirs = frame.CounterA
			if !bytes.Equal(protocol.TokenRETR, frame.Payload) {
				return &AbortError{Reason: "final chunk not acknowledged with RETR"}
			}
			return nil
		}

		// Micro-wait: a single blocking receive whose content is
		// ignored, purely to pace ourselves to the device.
		_, _, _ = s.transport.Recv()
		time.Sleep(s.chunkSleep)
	}
}

// do sends payload (pre-incrementing our counter) and, unless
// expected is nil, blocks for an in-sync reply matching it. When
// tolerateMissing is set, a receive timeout is treated as success
// rather than an abort: theirs is left unchanged, while ours keeps the
// increment for the frame that was sent.
func (s *Session) do(payload, expected []byte, tolerateMissing bool) error {
	s.counters.ours++
	if err := s.transport.Send(payload, s.counters.theirs, s.counters.ours, s.device.MAC); err != nil {
		return &AbortError{Reason: "send failed", Err: err}
	}
	if expected == nil {
		return nil
	}

	frame, err := s.waitInSync()
	if err != nil {
		if tolerateMissing && errors.Is(err, ErrRecvTimeout) {
			return nil
		}
		return err
	}
	s.counters.theirs = frame.CounterA
	if !bytes.Equal(expected, frame.Payload) {
		return &AbortError{Reason: fmt.Sprintf("expected %q, got %q", expected, frame.Payload)}
	}
	return nil
}

// waitInSync blocks until a device-origin frame arrives whose
// counter_b acknowledges our current counter (that is, the reply we
// are actually waiting for rather than a stale or out-of-sync one).
// A decode error or a receive timeout aborts immediately. An
// out-of-sync frame is dropped and retried, up to maxErrors times,
// before the wait itself promotes to an abort. Frames that are not
// device-origin (our own broadcast looping back, foreign traffic) are
// dropped silently and never count against the retry budget.
func (s *Session) waitInSync() (protocol.Frame, error) {
	errCount := 0
	for {
		frame, srcIP, err := s.transport.Recv()
		if err != nil {
			if err == ErrRecvTimeout {
				return protocol.Frame{}, &AbortError{Reason: "receive timed out", Err: err}
			}
			return protocol.Frame{}, &AbortError{Reason: "decoding reply", Err: err}
		}
		if !s.transport.IsDeviceOrigin(srcIP, frame) {
			continue
		}
		if frame.CounterB != s.counters.ours {
			errCount++
			if errCount > s.maxErrors {
				return protocol.Frame{}, &AbortError{Reason: fmt.Sprintf("exceeded %d out-of-sync replies", s.maxErrors)}
			}
			continue
		}
		return frame, nil
	}
}

func (s *Session) setPhase(p protocol.Phase) {
	s.phase = p
	s.status.publish(StatusEvent{Device: s.device, Phase: p})
}

func (s *Session) abort(err error) error {
	s.phase = protocol.PhaseAborted
	s.status.publish(StatusEvent{Device: s.device, Phase: protocol.PhaseAborted, Message: err.Error()})
	return err
}
