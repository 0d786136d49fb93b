// Package refresh drives full-list reloads of the order collection: one
// immediate fetch to seed it, explicit reloads on demand, and an optional
// periodic re-fetch. A reload replaces the whole collection; the live stream
// keeps merging into whatever is current. A failed reload leaves the
// collection untouched, so the list stays usable however the fetch fares.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/ordersfe/livefeed/internal/model"
)

// Lister fetches the full order list for a customer. Implemented by
// api.Client.
type Lister interface {
	ListCustomerOrders(ctx context.Context, customerID string) ([]model.Order, error)
}

// Target accepts full-collection replacements. Implemented by orders.Feed.
type Target interface {
	Replace(ctx context.Context, orders []model.Order) error
}

// Config holds refresher configuration.
type Config struct {
	Interval time.Duration // Periodic refresh interval; 0 disables it
	Timeout  time.Duration // Per-fetch timeout (default: 10s)
}

// DefaultConfig returns sensible defaults: no periodic refresh, 10s fetch
// timeout.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// Refresher replaces the order collection from the list endpoint.
type Refresher struct {
	cfg      Config
	client   Lister
	target   Target
	customer string
	logger   *slog.Logger

	trigger chan struct{}
}

// New creates a Refresher for one customer.
func New(cfg Config, client Lister, target Target, customerID string, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Refresher{
		cfg:      cfg,
		client:   client,
		target:   target,
		customer: customerID,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an explicit reload. Coalesced: triggering while a reload
// is already pending is a no-op.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run performs the initial load and then serves trigger and interval
// reloads until the context ends.
func (r *Refresher) Run(ctx context.Context) error {
	r.reload(ctx)

	var tick <-chan time.Time
	if r.cfg.Interval > 0 {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
			r.reload(ctx)
		case <-tick:
			r.reload(ctx)
		}
	}
}

func (r *Refresher) reload(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	orders, err := r.client.ListCustomerOrders(fetchCtx, r.customer)
	if err != nil {
		r.logger.Warn("order list reload failed, keeping current collection",
			"customer", r.customer,
			"error", err,
		)
		return
	}

	if err := r.target.Replace(ctx, orders); err != nil {
		r.logger.Warn("order list replacement rejected", "error", err)
		return
	}

	r.logger.Debug("order list reloaded",
		"customer", r.customer,
		"count", len(orders),
	)
}
