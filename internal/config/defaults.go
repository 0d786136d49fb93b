package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	DefaultEventBuffer    = 256
	DefaultRefreshTimeout = 10 * time.Second
)

func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	if c.Stream.BackoffBase == 0 {
		c.Stream.BackoffBase = DefaultBackoffBase
	}
	if c.Stream.BackoffMax == 0 {
		c.Stream.BackoffMax = DefaultBackoffMax
	}
	if c.Stream.EventBuffer == 0 {
		c.Stream.EventBuffer = DefaultEventBuffer
	}

	// Refresh.Interval deliberately has no default: periodic reload is
	// opt-in, the stream keeps the collection current.
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultRefreshTimeout
	}
}
