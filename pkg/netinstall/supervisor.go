package netinstall

import (
	"context"
	"errors"
)

// FileResolver produces the upload set for a discovered device. It is
// the seam the provider registry plugs into: the supervisor never
// decides what to flash, only when and to whom.
type FileResolver interface {
	Resolve(DeviceInfo) (firmware FileSpec, extras []FileSpec, config *FileSpec, err error)
}

// Logger is the minimal surface the supervisor needs; satisfied by
// *log.Logger and by the structured logger in pkg/logging.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Supervisor owns one Transport across the whole process lifetime,
// discovering devices and handing each one to a fresh Session in
// turn. Without Oneshot it never returns on an AbortError — only a
// FatalError or a context cancellation ends the loop. With Oneshot
// set, the first session's outcome (nil or its AbortError) is returned.
type Supervisor struct {
	Transport *Transport
	Resolver  FileResolver
	Log       Logger
	Oneshot   bool

	// OnStatus, if set, receives every StatusEvent from every session
	// the supervisor runs. It is called from a goroutine that drains
	// the session's event channel; while it blocks, events that do not
	// fit in that channel's buffer are dropped.
	OnStatus func(StatusEvent)
}

// Run discovers and flashes devices until ctx is canceled, a
// FatalError occurs, or (in oneshot mode) one session completes.
func (sup *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		dev, err := Discover(sup.Transport)
		if err != nil {
			if errors.Is(err, ErrRecvTimeout) {
				continue
			}
			sup.logf("discovery error: %v", err)
			continue
		}
		sup.logf("discovered device %s", dev)

		firmware, extras, config, err := sup.Resolver.Resolve(dev)
		if err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return fatal
			}
			sup.logf("resolving files for %s: %v (skipping)", dev, err)
			continue
		}

		if err := sup.runSession(dev, firmware, extras, config); err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return fatal
			}
			sup.logf("session for %s ended: %v", dev, err)
			if sup.Oneshot {
				return err
			}
			continue
		}

		sup.logf("session for %s finished successfully", dev)
		if sup.Oneshot {
			return nil
		}
	}
}

func (sup *Supervisor) runSession(dev DeviceInfo, firmware FileSpec, extras []FileSpec, config *FileSpec) error {
	session := NewSession(sup.Transport, dev)
	if sup.OnStatus != nil {
		go func() {
			for ev := range session.Events() {
				sup.OnStatus(ev)
			}
		}()
	}
	return session.Run(firmware, extras, config)
}

func (sup *Supervisor) logf(format string, args ...interface{}) {
	if sup.Log != nil {
		sup.Log.Printf(format, args...)
	}
}
