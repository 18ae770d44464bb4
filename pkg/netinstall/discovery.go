package netinstall

// Discover blocks on t until a datagram arrives that looks like a
// fresh device announcing itself: device-origin, counters (1, 0), a
// parseable info block. Any other traffic on the wire (our own
// looped-back broadcasts, a stray reply meant for some other session,
// an undecodable frame) is skipped silently here and is not logged or
// reported to the caller; it does not count against any retry budget,
// since discovery has none.
//
// A receive timeout propagates to the caller unchanged so the
// supervisor can check for a stop request before looping back.
func Discover(t *Transport) (DeviceInfo, error) {
	for {
		frame, srcIP, err := t.Recv()
		if err != nil {
			if err == ErrRecvTimeout {
				return DeviceInfo{}, err
			}
			// A malformed datagram is stray traffic, not a discovery
			// failure; keep listening.
			continue
		}
		if !t.IsDeviceOrigin(srcIP, frame) {
			continue
		}
		if frame.CounterA != 1 || frame.CounterB != 0 {
			// Traffic from a device already mid-session (or replaying
			// a stale reply); discovery only accepts the opening move.
			continue
		}
		info, err := deviceInfoFromPayload(frame.SrcMAC, frame.Payload)
		if err != nil {
			continue
		}
		return info, nil
	}
}
