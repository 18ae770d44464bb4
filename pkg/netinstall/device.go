package netinstall

import (
	"bytes"
	"fmt"
)

// DeviceInfo describes a RouterBOARD discovered in netinstall mode.
// It is immutable after discovery and owned by exactly one session.
type DeviceInfo struct {
	MAC        [6]byte
	Model      string
	Arch       string
	MinOS      string
	LicenseID  string
	LicenseKey string
}

// deviceInfoFromPayload parses a DeviceInfo out of a discovery
// datagram's frame payload (the bytes after the 20-byte header, which
// already account for the device's 6-byte source MAC plus 14 further
// header/padding bytes the device sends before the text block).
//
// The payload is a newline-separated block of six fields: an ignored
// leading field, license id, license key, model, architecture, and
// minimum OS version. The leading field's meaning is not documented
// upstream and is treated as opaque.
func deviceInfoFromPayload(mac [6]byte, payload []byte) (DeviceInfo, error) {
	rows := bytes.Split(payload, []byte("\n"))
	if len(rows) < 6 {
		return DeviceInfo{}, fmt.Errorf("netinstall: discovery payload has %d fields, want at least 6", len(rows))
	}
	// rows[0] is the ignored leading field.
	return DeviceInfo{
		MAC:        mac,
		LicenseID:  string(rows[1]),
		LicenseKey: string(rows[2]),
		Model:      string(rows[3]),
		Arch:       string(rows[4]),
		MinOS:      string(rows[5]),
	}, nil
}

// FormatMAC renders a hardware address in the usual colon-separated
// hex form.
func FormatMAC(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// String renders a DeviceInfo for logging.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x (%s, %s, minOS %s)",
		d.MAC[0], d.MAC[1], d.MAC[2], d.MAC[3], d.MAC[4], d.MAC[5], d.Model, d.Arch, d.MinOS)
}
