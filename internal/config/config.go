// Package config handles converter configuration loading and management.
package config

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

// Config holds all converter settings.
type Config struct {
	Convert ConvertConfig `yaml:"convert"`
	Preview PreviewConfig `yaml:"preview"`
	Logging LoggingConfig `yaml:"logging"`
}

// ConvertConfig holds the weighted buffer conversion settings.
type ConvertConfig struct {
	Format                   string `yaml:"format"` // buffer, basic, chunk or gc
	CombineAtDependencyRoots bool   `yaml:"combine_at_dependency_roots"`
	Optimize                 bool   `yaml:"optimize"`
	IgnoreWeights            bool   `yaml:"ignore_weights"`
}

// PreviewConfig holds glTF preview export settings.
type PreviewConfig struct {
	Binary bool    `yaml:"binary"` // Write .glb instead of .gltf
	Scale  float32 `yaml:"scale"`  // Uniform scale applied to exported positions
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Convert: ConvertConfig{
			Format: "buffer",
		},
		Preview: PreviewConfig{
			Binary: true,
			Scale:  1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// AttachFormat returns the parsed output format.
func (c *Config) AttachFormat() (scene.AttachFormat, error) {
	return scene.ParseAttachFormat(c.Convert.Format)
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if _, err := c.AttachFormat(); err != nil {
		return errors.Wrapf(ErrInvalid, "convert.format: %v", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(ErrInvalid, "logging.level %q", c.Logging.Level)
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.Wrap(ErrInvalid, "logging rotation limits must not be negative")
	}
	if c.Preview.Scale <= 0 {
		return errors.Wrapf(ErrInvalid, "preview.scale %v", c.Preview.Scale)
	}
	return nil
}
