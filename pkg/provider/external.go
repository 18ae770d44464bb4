package provider

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
)

func init() {
	register("external", newExternalProvider)
}

// ExternalConfig names the script or binary an "external" provider
// shells out to for every discovered device.
type ExternalConfig struct {
	Command string
}

var externalConfig ExternalConfig

// ConfigureExternal installs the command the "external" provider
// invokes. Call this once before Lookup("external").
func ConfigureExternal(cfg ExternalConfig) { externalConfig = cfg }

type externalProvider struct {
	command string
}

func newExternalProvider() (Provider, error) {
	if externalConfig.Command == "" {
		return nil, fmt.Errorf("plugin=external given but no command configured")
	}
	if _, err := exec.LookPath(externalConfig.Command); err != nil {
		return nil, fmt.Errorf("external command %q: %w", externalConfig.Command, err)
	}
	return &externalProvider{command: externalConfig.Command}, nil
}

func (p *externalProvider) Name() string { return "external" }

// Resolve runs the configured command with the device's model,
// architecture, and MAC address as positional arguments, and parses
// its stdout as newline-separated file paths: the first line is
// always the firmware. If the remaining line count is even, the last
// line is the initial configuration script and everything between is
// an extra package; if odd, every remaining line is an extra package
// and no configuration is uploaded.
func (p *externalProvider) Resolve(dev netinstall.DeviceInfo) (netinstall.FileSpec, []netinstall.FileSpec, *netinstall.FileSpec, error) {
	cmd := exec.Command(p.command, dev.Model, dev.Arch, netinstall.FormatMAC(dev.MAC))
	cmd.Env = append(os.Environ(),
		"PYNETINSTALL_MODEL="+dev.Model,
		"PYNETINSTALL_ARCH="+dev.Arch,
		"PYNETINSTALL_MAC="+netinstall.FormatMAC(dev.MAC),
		"PYNETINSTALL_MIN_OS="+dev.MinOS,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return netinstall.FileSpec{}, nil, nil, fmt.Errorf("running %q: %w (stderr: %s)", p.command, err, stderr.String())
	}

	lines := splitNonEmptyLines(stdout.String())
	if len(lines) == 0 {
		return netinstall.FileSpec{}, nil, nil, fmt.Errorf("%q produced no output", p.command)
	}

	firmware, err := openSource(lines[0])
	if err != nil {
		return netinstall.FileSpec{}, nil, nil, fmt.Errorf("opening firmware %q: %w", lines[0], err)
	}

	rest := lines[1:]
	var configPath string
	if len(rest)%2 == 0 && len(rest) > 0 {
		configPath = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}

	extras := make([]netinstall.FileSpec, 0, len(rest))
	for _, line := range rest {
		spec, err := openSource(line)
		if err != nil {
			return netinstall.FileSpec{}, nil, nil, fmt.Errorf("opening package %q: %w", line, err)
		}
		extras = append(extras, spec)
	}

	var config *netinstall.FileSpec
	if configPath != "" {
		spec, err := openSource(configPath)
		if err != nil {
			return netinstall.FileSpec{}, nil, nil, fmt.Errorf("opening config %q: %w", configPath, err)
		}
		config = &spec
	}

	return firmware, extras, config, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

