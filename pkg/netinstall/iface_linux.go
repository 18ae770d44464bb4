//go:build linux

package netinstall

import (
	"fmt"
	"unsafe"

	"github.com/mdlayher/netlink"
)

// Linux rtnetlink constants (see linux/rtnetlink.h, linux/if_link.h).
const (
	rtmGetLink  = 18 // RTM_GETLINK
	iflaAddress = 1  // IFLA_ADDRESS
	iflaIfname  = 3  // IFLA_IFNAME
)

// ifInfoMsg mirrors struct ifinfomsg from linux/rtnetlink.h.
type ifInfoMsg struct {
	Family uint8
	_      uint8
	Type   uint16
	Index  int32
	Flags  uint32
	Change uint32
}

// resolveInterfaceMAC asks the kernel for the hardware address of the
// named interface over an AF_NETLINK/NETLINK_ROUTE socket, dumping all
// links and filtering client-side by IFLA_IFNAME — the same
// dial-craft-Execute-UnmarshalAttributes shape used elsewhere in the
// pack for generic netlink queries, generalized here from socket
// diagnostics to link queries. Falls back to net.InterfaceByName if
// the netlink socket cannot be opened or the query fails, so a
// container or kernel without rtnetlink support still works.
func resolveInterfaceMAC(name string) ([6]byte, error) {
	mac, err := resolveInterfaceMACNetlink(name)
	if err == nil {
		return mac, nil
	}
	return interfaceMACByName(name)
}

func resolveInterfaceMACNetlink(name string) ([6]byte, error) {
	const familyRoute = 0 // NETLINK_ROUTE

	conn, err := netlink.Dial(familyRoute, nil)
	if err != nil {
		return [6]byte{}, fmt.Errorf("netinstall: dial rtnetlink: %w", err)
	}
	defer conn.Close()

	req := ifInfoMsg{Family: 0 /* AF_UNSPEC */}
	reqBytes := (*[unsafe.Sizeof(req)]byte)(unsafe.Pointer(&req))[:]

	msg := netlink.Message{
		Header: netlink.Header{
			Type:  rtmGetLink,
			Flags: netlink.Request | netlink.Dump,
		},
		Data: reqBytes,
	}

	replies, err := conn.Execute(msg)
	if err != nil {
		return [6]byte{}, fmt.Errorf("netinstall: RTM_GETLINK: %w", err)
	}

	for _, reply := range replies {
		if len(reply.Data) < int(unsafe.Sizeof(ifInfoMsg{})) {
			continue
		}
		body := reply.Data[unsafe.Sizeof(ifInfoMsg{}):]
		attrs, err := netlink.UnmarshalAttributes(body)
		if err != nil {
			continue
		}

		var ifname string
		var addr []byte
		for _, a := range attrs {
			switch a.Type {
			case iflaIfname:
				ifname = nullTerminatedString(a.Data)
			case iflaAddress:
				addr = a.Data
			}
		}
		if ifname == name {
			if len(addr) != 6 {
				return [6]byte{}, fmt.Errorf("netinstall: interface %q reported a %d-byte address", name, len(addr))
			}
			var mac [6]byte
			copy(mac[:], addr)
			return mac, nil
		}
	}
	return [6]byte{}, fmt.Errorf("netinstall: interface %q not found via rtnetlink", name)
}

func nullTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
