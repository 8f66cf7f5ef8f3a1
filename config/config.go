package config

import (
	"fmt"

	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/validation"
)

// Default high-water marks.
const (
	DefaultHighWaterMark       = 16 * 1024
	DefaultObjectHighWaterMark = 16
)

// StreamConfig holds construction defaults for streams.
type StreamConfig struct {
	// HighWaterMark is the byte threshold for byte-mode streams.
	HighWaterMark int `yaml:"high_water_mark" mapstructure:"high_water_mark" validate:"gte=0"`
	// ObjectHighWaterMark is the item threshold for object-mode streams.
	ObjectHighWaterMark int `yaml:"object_high_water_mark" mapstructure:"object_high_water_mark" validate:"gte=0"`
	// ObjectMode switches size accounting to one unit per chunk.
	ObjectMode bool `yaml:"object_mode" mapstructure:"object_mode"`
	// AutoDestroy destroys a stream on its first error instead of only emitting it.
	AutoDestroy bool `yaml:"auto_destroy" mapstructure:"auto_destroy"`
}

// ApplyDefaults fills zero marks with the library defaults.
// A mark of zero is legal on a stream but is treated as unset here.
func (c *StreamConfig) ApplyDefaults() {
	if c.HighWaterMark == 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	if c.ObjectHighWaterMark == 0 {
		c.ObjectHighWaterMark = DefaultObjectHighWaterMark
	}
}

// Validate validates stream configuration.
func (c *StreamConfig) Validate() error {
	return validation.Validate(c)
}

// Mark returns the high-water mark that applies to the configured mode.
func (c *StreamConfig) Mark() int {
	if c.ObjectMode {
		return c.ObjectHighWaterMark
	}
	return c.HighWaterMark
}

// Config is the top-level streamkit configuration.
type Config struct {
	Name    string        `yaml:"name" mapstructure:"name"`
	Stream  StreamConfig  `yaml:"stream" mapstructure:"stream"`
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ApplyDefaults applies default values to every section.
func (c *Config) ApplyDefaults() {
	c.Stream.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("config.stream: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}
