package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/ordersfe/livefeed/internal/model"
)

// Subscription is one live order-event feed for one subject. It delivers
// events to exactly one listener; fan-out belongs to a broadcast wrapper on
// top, not here.
type Subscription struct {
	cfg    Config
	source IdentitySource
	logger *slog.Logger

	events chan model.OrderEvent
	errs   chan error // at most one terminal error

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}

	state   atomic.Int32
	retries atomic.Int32
}

// Subscribe starts a stream subscription for the source's current subject.
// Fails synchronously with ErrUnauthenticated, before any network activity,
// if no credential or subject is available. The connect/retry loop runs in a
// background goroutine until Cancel is called or the credential is rejected.
func Subscribe(ctx context.Context, source IdentitySource, cfg Config, logger *slog.Logger) (*Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := source.Identity(); err != nil {
		return nil, ErrUnauthenticated
	}
	cfg = cfg.withDefaults()

	sctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		cfg:    cfg,
		source: source,
		logger: logger,
		events: make(chan model.OrderEvent, cfg.EventBuffer),
		errs:   make(chan error, 1),
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))

	go s.run(&client{http: cfg.HTTPClient, logger: logger})

	return s, nil
}

// Events returns the event channel. Closed once the subscription reaches a
// terminal state.
func (s *Subscription) Events() <-chan model.OrderEvent {
	return s.events
}

// Err returns the terminal error channel. It carries at most one error, and
// only ErrUnauthorized: transient failures are retried silently and never
// appear here.
func (s *Subscription) Err() <-chan error {
	return s.errs
}

// State returns the current connection state. Best-effort status signal;
// delivery does not depend on anyone observing it.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Retries returns the consecutive-failure counter. Zero while the stream is
// healthy.
func (s *Subscription) Retries() int {
	return int(s.retries.Load())
}

// Done is closed when the connect loop has fully stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel aborts the in-flight request, stops any pending retry timer, and
// prevents all further connect attempts. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.stopped.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// run is the connect/retry loop: an explicit state machine instead of
// nested callbacks, so the cancellation races are checkable conditions.
func (s *Subscription) run(c *client) {
	defer close(s.done)
	defer close(s.events)
	defer s.cancel()

	attempt := 0
	for {
		// Stopped flag is checked at the point of issuing an attempt as well
		// as after the backoff timer below, so cancellation wins either race.
		if s.stopped.Load() {
			s.setState(StateClosed)
			return
		}

		s.setState(StateConnecting)

		var err error
		id, idErr := s.source.Identity()
		if idErr != nil {
			// Credential disappeared mid-life (logout elsewhere). Not a
			// server rejection, so keep retrying until cancelled.
			err = idErr
		} else {
			err = c.connect(s.ctx, s.streamURL(id.Subject), id.Token,
				func() {
					attempt = 0
					s.retries.Store(0)
					s.setState(StateOpen)
					s.logger.Info("order stream open", "subject", id.Subject)
				},
				s.deliver,
			)
		}

		switch {
		case s.stopped.Load() || s.ctx.Err() != nil:
			s.setState(StateClosed)
			return
		case errors.Is(err, ErrUnauthorized):
			s.setState(StateFatallyClosed)
			s.errs <- ErrUnauthorized
			s.logger.Warn("credential rejected, stream closed")
			return
		}

		attempt++
		s.retries.Store(int32(attempt))
		delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, attempt)
		s.setState(StateRetrying)
		s.logger.Warn("stream interrupted, reconnecting",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if s.stopped.Load() {
			s.setState(StateClosed)
			return
		}
		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.setState(StateClosed)
			return
		case <-timer.C:
		}
	}
}

func (s *Subscription) deliver(evt model.OrderEvent) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *Subscription) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Subscription) streamURL(subject string) string {
	return s.cfg.BaseURL + "/api/notifications/stream/" + url.PathEscape(subject)
}
