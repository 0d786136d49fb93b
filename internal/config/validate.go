package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url is not an absolute URL: %q", c.API.BaseURL)
	}
	if strings.HasSuffix(c.API.BaseURL, "/") {
		return fmt.Errorf("api.base_url must not end with a slash: %q", c.API.BaseURL)
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Stream.BackoffBase <= 0 {
		return errors.New("stream.backoff_base must be positive")
	}
	if c.Stream.BackoffMax < c.Stream.BackoffBase {
		return fmt.Errorf("stream.backoff_max (%v) must be >= stream.backoff_base (%v)",
			c.Stream.BackoffMax, c.Stream.BackoffBase)
	}
	if c.Stream.EventBuffer < 1 {
		return errors.New("stream.event_buffer must be >= 1")
	}

	if c.Refresh.Interval < 0 {
		return errors.New("refresh.interval must be >= 0")
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("refresh.timeout must be positive")
	}

	return nil
}
