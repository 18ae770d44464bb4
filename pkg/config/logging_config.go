package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoggingConfig is the document the -l/--logging flag points at.
// MaxSizeMB/MaxBackups are honored by Logger's own rotation, not
// deferred to an external rotator.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// LoadLoggingConfig reads and validates a YAML logging config from
// path.
func LoadLoggingConfig(path string) (*LoggingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logging config: %w", err)
	}

	var cfg LoggingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse logging config: %w", err)
	}
	cfg.setDefaults()

	if !validLogLevels[cfg.Level] {
		return nil, fmt.Errorf("invalid logging level: %s", cfg.Level)
	}
	return &cfg, nil
}

func (c *LoggingConfig) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
}

// DefaultLoggingConfig is used when -l/--logging is not given: stdout
// at info level, with -v bumping it to debug.
func DefaultLoggingConfig(verbosity int) *LoggingConfig {
	level := "info"
	if verbosity >= 1 {
		level = "debug"
	}
	return &LoggingConfig{Level: level, MaxSizeMB: 100, MaxBackups: 3}
}
