package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/ordersfe/livefeed/internal/auth"
)

// Errors crossing the package boundary. Everything else is retried
// internally and never surfaced.
var (
	// ErrUnauthenticated means no credential/identity was available at
	// subscribe time. No network attempt is made.
	ErrUnauthenticated = errors.New("stream: not authenticated")

	// ErrUnauthorized means the server rejected the credential. Terminal:
	// retrying with the same token cannot succeed.
	ErrUnauthorized = errors.New("stream: unauthorized")
)

// State is the connection lifecycle state.
type State int32

const (
	// StateIdle: subscription created, first attempt not yet started.
	StateIdle State = iota
	// StateConnecting: a connect attempt is in flight.
	StateConnecting
	// StateOpen: healthy stream established; events are being delivered.
	StateOpen
	// StateRetrying: waiting out a backoff delay after a transient failure.
	StateRetrying
	// StateFatallyClosed: the credential was rejected. Terminal.
	StateFatallyClosed
	// StateClosed: cancelled by the caller. Terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateFatallyClosed:
		return "fatally_closed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no further connect attempts will be made.
func (s State) Terminal() bool {
	return s == StateFatallyClosed || s == StateClosed
}

// IdentitySource supplies the current credentials. Implemented by
// auth.TokenStore. Re-read at every (re)connect attempt so a refreshed token
// is picked up without resubscribing.
type IdentitySource interface {
	Identity() (auth.Identity, error)
}

// Config configures a stream subscription.
type Config struct {
	BaseURL     string        // API gateway base URL (no trailing slash)
	BackoffBase time.Duration // First-retry backoff unit (default: 500ms)
	BackoffMax  time.Duration // Backoff ceiling (default: 30s)
	EventBuffer int           // Event channel buffer size (default: 256)
	HTTPClient  *http.Client  // Transport; must not set a global timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  30 * time.Second,
		EventBuffer: 256,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = def.BackoffMax
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.HTTPClient == nil {
		// The response body stays open for the life of the connection, so a
		// client-wide timeout would kill healthy streams.
		c.HTTPClient = &http.Client{}
	}
	return c
}

// backoffDelay returns min(BackoffMax, BackoffBase * 2^attempt) for the n-th
// consecutive failure, attempt starting at 1.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
