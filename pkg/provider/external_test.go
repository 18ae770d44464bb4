package provider

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/netboot-tools/pynetinstall/pkg/netinstall"
)

func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("external provider test assumes a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
	return path
}

func TestExternalProviderFirmwareOnlyHasNoConfig(t *testing.T) {
	dir := t.TempDir()
	firmwarePath := writeTempFile(t, dir, "firmware.npk", []byte{0x1E, 0xF1, 0xD0, 0xBA})
	script := writeExecutable(t, dir, "resolve.sh", "#!/bin/sh\necho "+firmwarePath+"\n")

	ConfigureExternal(ExternalConfig{Command: script})
	p, err := Lookup("external")
	if err != nil {
		t.Fatalf("Lookup(external) failed: %v", err)
	}

	firmware, extras, config, err := p.Resolve(netinstall.DeviceInfo{Model: "RB750", Arch: "arm"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	defer firmware.Reader.Close()

	if firmware.Name != "firmware.npk" {
		t.Errorf("firmware.Name = %q, want firmware.npk", firmware.Name)
	}
	if len(extras) != 0 {
		t.Errorf("extras = %+v, want none", extras)
	}
	if config != nil {
		t.Errorf("config = %+v, want nil when only the firmware line is printed", config)
	}
}

func TestExternalProviderEvenLineCountHasConfig(t *testing.T) {
	dir := t.TempDir()
	firmwarePath := writeTempFile(t, dir, "firmware.npk", []byte{0x1E, 0xF1, 0xD0, 0xBA})
	pkgPath := writeTempFile(t, dir, "extra.npk", []byte("extra"))
	configPath := writeTempFile(t, dir, "autorun.rsc", []byte("config"))
	script := writeExecutable(t, dir, "resolve.sh",
		"#!/bin/sh\necho "+firmwarePath+"\necho "+pkgPath+"\necho "+configPath+"\n")

	ConfigureExternal(ExternalConfig{Command: script})
	p, err := Lookup("external")
	if err != nil {
		t.Fatalf("Lookup(external) failed: %v", err)
	}

	firmware, extras, config, err := p.Resolve(netinstall.DeviceInfo{Model: "RB750", Arch: "arm"})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	defer firmware.Reader.Close()
	defer func() {
		for _, e := range extras {
			e.Reader.Close()
		}
	}()

	if len(extras) != 1 || extras[0].Name != "extra.npk" {
		t.Errorf("extras = %+v, want one entry named extra.npk", extras)
	}
	if config == nil || config.Name != "autorun.rsc" {
		t.Fatalf("config = %+v, want autorun.rsc", config)
	}
	config.Reader.Close()
}
