package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v3"
)

// Config is the parsed [pynetinstall] section of config.ini: which
// plugin resolves files, and the plugin-specific settings the
// "simple" plugin reads directly.
type Config struct {
	Plugin             string   `ini:"plugin"`
	Firmware           string   `ini:"firmware"`
	InitialConfig      string   `ini:"config"`
	AdditionalPackages []string `ini:"-"`
	ExternalCommand    string   `ini:"-"`
	Interface          string   `ini:"interface"`
	Oneshot            bool     `ini:"oneshot"`
}

// LoadConfig loads and validates config.ini from path.
func LoadConfig(path string) (*Config, error) {
	// additional_packages= is written one path per indented
	// continuation line, the same convention the original Python
	// configparser uses for multi-line values.
	file, err := ini.LoadSources(ini.LoadOptions{AllowPythonMultilineValues: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	section := file.Section("pynetinstall")
	cfg := &Config{
		Plugin:        section.Key("plugin").MustString("simple"),
		Firmware:      section.Key("firmware").String(),
		InitialConfig: section.Key("config").String(),
		Interface:     section.Key("interface").String(),
		Oneshot:       section.Key("oneshot").MustBool(false),
	}
	cfg.AdditionalPackages = splitLines(section.Key("additional_packages").String())
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (c *Config) setDefaults() {
	if c.Plugin == "" {
		c.Plugin = "simple"
	}
	if c.Interface == "" {
		c.Interface = "eth0"
	}

	if name, cmd, ok := strings.Cut(c.Plugin, ":"); ok && name == "external" {
		c.Plugin = "external"
		c.ExternalCommand = cmd
	}
}

func (c *Config) validate() error {
	switch c.Plugin {
	case "simple":
		if c.Firmware == "" {
			return fmt.Errorf("[pynetinstall]firmware= is not defined in the configuration")
		}
	case "external":
		if c.ExternalCommand == "" {
			return fmt.Errorf("[pynetinstall]plugin=external:<command> needs a command")
		}
	default:
		return fmt.Errorf("unknown plugin %q", c.Plugin)
	}
	return nil
}

// GenerateDefaultConfig returns a Config with every field at its
// documented default, for writing out a starter config.ini.
func GenerateDefaultConfig() *Config {
	return &Config{
		Plugin:    "simple",
		Firmware:  "/etc/pynetinstall/firmware.npk",
		Interface: "eth0",
	}
}

// WriteConfigFile writes cfg as an INI document to path.
func WriteConfigFile(cfg *Config, path string) error {
	file := ini.Empty()
	section, err := file.NewSection("pynetinstall")
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	section.NewKey("plugin", cfg.Plugin)
	section.NewKey("firmware", cfg.Firmware)
	section.NewKey("config", cfg.InitialConfig)
	section.NewKey("additional_packages", strings.Join(cfg.AdditionalPackages, "\n"))
	section.NewKey("interface", cfg.Interface)
	section.NewKey("oneshot", fmt.Sprintf("%t", cfg.Oneshot))

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
