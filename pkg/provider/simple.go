package provider

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
)

func init() {
	register("simple", newSimpleProvider)
}

// SimpleConfig is the [pynetinstall] section of config.ini: the
// firmware, an optional initial configuration script, and any extra
// packages, each given as a local path or an http(s) URL.
type SimpleConfig struct {
	Firmware           string
	Config             string
	AdditionalPackages []string
}

var simpleConfig SimpleConfig

// Configure installs the configuration the "simple" provider reads
// when the registry constructs it. Call this once before the first
// Lookup("simple").
func Configure(cfg SimpleConfig) { simpleConfig = cfg }

type simpleProvider struct {
	cfg SimpleConfig
}

func newSimpleProvider() (Provider, error) {
	cfg := simpleConfig
	if cfg.Firmware == "" {
		return nil, fmt.Errorf("firmware= is not set in the [pynetinstall] section")
	}
	if err := checkSource(cfg.Firmware); err != nil {
		return nil, fmt.Errorf("firmware %q: %w", cfg.Firmware, err)
	}
	if cfg.Config != "" {
		if err := checkSource(cfg.Config); err != nil {
			return nil, fmt.Errorf("config %q: %w", cfg.Config, err)
		}
	}
	for _, pkg := range cfg.AdditionalPackages {
		if err := checkSource(pkg); err != nil {
			return nil, fmt.Errorf("package %q: %w", pkg, err)
		}
	}
	return &simpleProvider{cfg: cfg}, nil
}

func (p *simpleProvider) Name() string { return "simple" }

// Resolve is device-independent for this provider: every RouterBOARD
// gets the same configured set of files.
func (p *simpleProvider) Resolve(netinstall.DeviceInfo) (netinstall.FileSpec, []netinstall.FileSpec, *netinstall.FileSpec, error) {
	firmware, err := openSource(p.cfg.Firmware)
	if err != nil {
		return netinstall.FileSpec{}, nil, nil, fmt.Errorf("opening firmware: %w", err)
	}

	extras := make([]netinstall.FileSpec, 0, len(p.cfg.AdditionalPackages))
	for _, pkg := range p.cfg.AdditionalPackages {
		spec, err := openSource(pkg)
		if err != nil {
			return netinstall.FileSpec{}, nil, nil, fmt.Errorf("opening package %q: %w", pkg, err)
		}
		extras = append(extras, spec)
	}

	var config *netinstall.FileSpec
	if p.cfg.Config != "" {
		spec, err := openSource(p.cfg.Config)
		if err != nil {
			return netinstall.FileSpec{}, nil, nil, fmt.Errorf("opening config: %w", err)
		}
		config = &spec
	}

	return firmware, extras, config, nil
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// checkSource validates a source exists without transferring it, so a
// misconfigured path fails once at startup rather than mid-session.
func checkSource(path string) error {
	if isURL(path) {
		resp, err := http.Head(path)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("HEAD %s: status %s", path, resp.Status)
		}
		return nil
	}
	_, err := os.Stat(path)
	return err
}

// openSource opens path for reading, local or remote, accepting either
// a filesystem path or an http(s):// URL.
func openSource(path string) (netinstall.FileSpec, error) {
	name := filepath.Base(strings.TrimRight(path, "/"))

	if isURL(path) {
		resp, err := http.Get(path)
		if err != nil {
			return netinstall.FileSpec{}, err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return netinstall.FileSpec{}, fmt.Errorf("GET %s: status %s", path, resp.Status)
		}
		return netinstall.FileSpec{Name: name, Size: resp.ContentLength, Reader: resp.Body}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return netinstall.FileSpec{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return netinstall.FileSpec{}, err
	}
	return netinstall.FileSpec{Name: info.Name(), Size: info.Size(), Reader: f}, nil
}
