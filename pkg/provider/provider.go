// Package provider resolves the set of files to upload to a
// discovered device. It replaces the original project's dynamic
// importlib plugin loading with a small, statically compiled
// registry: every provider this binary supports is linked in, and one
// is picked by name at startup.
package provider

import (
	"fmt"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
)

// Provider resolves the files one device should receive. Name()
// identifies the entry an operator selects via the "plugin" config
// key.
type Provider interface {
	Name() string
	Resolve(dev netinstall.DeviceInfo) (firmware netinstall.FileSpec, extras []netinstall.FileSpec, config *netinstall.FileSpec, err error)
}

var registry = map[string]func() (Provider, error){}

// register is called from each provider's init, mirroring the
// database/sql driver registration idiom.
func register(name string, factory func() (Provider, error)) {
	registry[name] = factory
}

// Lookup builds the named provider. It returns a *netinstall.FatalError
// when name is unknown or the provider fails to construct, since a
// bad plugin configuration is an operator error, not a per-device one.
func Lookup(name string) (Provider, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, &netinstall.FatalError{Reason: fmt.Sprintf("unknown plugin %q", name)}
	}
	p, err := factory()
	if err != nil {
		return nil, &netinstall.FatalError{Reason: fmt.Sprintf("loading plugin %q", name), Err: err}
	}
	return p, nil
}

// Resolver adapts a Provider to netinstall.FileResolver, discarding
// the device-independent Name().
type Resolver struct {
	Provider Provider
}

func (r Resolver) Resolve(dev netinstall.DeviceInfo) (netinstall.FileSpec, []netinstall.FileSpec, *netinstall.FileSpec, error) {
	return r.Provider.Resolve(dev)
}
