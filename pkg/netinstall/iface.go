package netinstall

import (
	"fmt"
	"net"
)

// InterfaceSelector names the Ethernet interface the link transport
// should bind to, either by its platform interface name or by a
// literal hardware address (spec.md §6's -i/--interface: "interface
// name (Linux) OR literal MAC").
type InterfaceSelector struct {
	name string
	mac  [6]byte
	isMAC bool
}

// ParseInterfaceSelector interprets s as a literal MAC address if it
// parses as one, otherwise as a platform interface name.
func ParseInterfaceSelector(s string) (InterfaceSelector, error) {
	if hw, err := net.ParseMAC(s); err == nil {
		if len(hw) != 6 {
			return InterfaceSelector{}, fmt.Errorf("netinstall: MAC %q is not 6 bytes", s)
		}
		var mac [6]byte
		copy(mac[:], hw)
		return InterfaceSelector{mac: mac, isMAC: true}, nil
	}
	if s == "" {
		return InterfaceSelector{}, fmt.Errorf("netinstall: empty interface selector")
	}
	return InterfaceSelector{name: s}, nil
}

// Resolve returns the hardware address the link transport should use
// as its source MAC. A literal-MAC selector returns immediately; a
// name selector is looked up via the platform-specific resolver
// (rtnetlink on Linux, falling back to net.InterfaceByName).
func (s InterfaceSelector) Resolve() ([6]byte, error) {
	if s.isMAC {
		return s.mac, nil
	}
	return resolveInterfaceMAC(s.name)
}

// String identifies the selector for logging.
func (s InterfaceSelector) String() string {
	if s.isMAC {
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", s.mac[0], s.mac[1], s.mac[2], s.mac[3], s.mac[4], s.mac[5])
	}
	return s.name
}

// interfaceMACByName is the portable fallback: ask the standard
// library for the named interface's hardware address.
func interfaceMACByName(name string) ([6]byte, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return [6]byte{}, fmt.Errorf("netinstall: lookup interface %q: %w", name, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return [6]byte{}, fmt.Errorf("netinstall: interface %q has no Ethernet MAC", name)
	}
	var mac [6]byte
	copy(mac[:], iface.HardwareAddr)
	return mac, nil
}
