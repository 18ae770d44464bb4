package netinstall

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/netboot-tools/pynetinstall/pkg/protocol"
)

// ListenPort is the fixed UDP port both sides of the netinstall
// protocol use.
const ListenPort = 5000

// DefaultRecvTimeout is the default per-Recv OS read deadline.
const DefaultRecvTimeout = protocol.DefaultRecvTimeoutSeconds * time.Second

// maxDatagramSize bounds a single inbound read.
const maxDatagramSize = 1024

// ErrRecvTimeout is returned by Recv when no datagram arrived before
// the configured timeout elapsed.
var ErrRecvTimeout = errors.New("netinstall: receive timed out")

// broadcastAddr is where every outbound frame is sent; the device has
// no IP of its own yet, so there is no unicast destination.
var broadcastAddr = &net.UDPAddr{IP: net.IPv4bcast, Port: ListenPort}

// Transport is a single-threaded broadcast UDP endpoint bound to the
// chosen interface. It owns the socket; the session engine borrows it
// for the duration of one session.
type Transport struct {
	conn     *net.UDPConn
	localMAC [6]byte
	timeout  time.Duration
}

// Open binds a UDP socket to 0.0.0.0:5000 with SO_REUSEADDR and
// SO_BROADCAST enabled, resolving sel to a local hardware address.
// Every Recv honors timeout.
func Open(sel InterfaceSelector, timeout time.Duration) (*Transport, error) {
	mac, err := sel.Resolve()
	if err != nil {
		return nil, fmt.Errorf("netinstall: resolve interface %s: %w", sel, err)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			ctlErr := c.Control(func(fd uintptr) {
				if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if ctlErr != nil {
				return ctlErr
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", ListenPort))
	if err != nil {
		return nil, fmt.Errorf("netinstall: bind udp socket: %w", err)
	}

	return newTransport(pc.(*net.UDPConn), mac, timeout), nil
}

func newTransport(conn *net.UDPConn, mac [6]byte, timeout time.Duration) *Transport {
	return &Transport{conn: conn, localMAC: mac, timeout: timeout}
}

// LocalMAC returns the hardware address frames are sent from.
func (t *Transport) LocalMAC() [6]byte { return t.localMAC }

// Send broadcasts an encoded frame addressed to dstMAC.
func (t *Transport) Send(payload []byte, counterA, counterB uint16, dstMAC [6]byte) error {
	frame, err := protocol.Encode(t.localMAC, dstMAC, counterA, counterB, payload)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(frame, broadcastAddr)
	return err
}

// Recv reads one datagram (bounded at maxDatagramSize bytes) and
// decodes it, returning the frame and the peer's source IP. The
// self-echo filter (src_ip == 0.0.0.0 is the only acceptable peer) is
// left to the session layer, per spec: this method reports every
// datagram it receives, including our own broadcasts looped back by
// the kernel.
func (t *Transport) Recv() (protocol.Frame, net.IP, error) {
	buf := make([]byte, maxDatagramSize)
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return protocol.Frame{}, nil, err
	}

	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return protocol.Frame{}, nil, ErrRecvTimeout
		}
		return protocol.Frame{}, nil, err
	}

	frame, err := protocol.Decode(buf[:n])
	if err != nil {
		return protocol.Frame{}, nil, err
	}
	return frame, addr.IP, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// IsDeviceOrigin reports whether a received datagram's source address
// and frame look like they came from the device rather than from our
// own broadcast looping back. The device has no IP of its own and
// always addresses replies with a literal source IP of 0.0.0.0; as a
// secondary guard (for raw-socket setups that cannot observe source
// IP) the frame's source MAC must also differ from ours.
func (t *Transport) IsDeviceOrigin(srcIP net.IP, frame protocol.Frame) bool {
	return srcIP.Equal(net.IPv4zero) && frame.SrcMAC != t.localMAC
}
