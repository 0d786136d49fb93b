package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ordersfe/livefeed/internal/model"
)

// client issues a single streaming connect attempt and decodes pushed
// messages. Reconnection policy lives in Subscription.
type client struct {
	http   *http.Client
	logger *slog.Logger
}

// connect opens the stream and decodes events until the server closes, the
// context is cancelled, or the transport fails. onOpen fires once after a
// healthy response status. The returned error classifies the attempt:
// ErrUnauthorized is terminal, a context error means the caller cancelled,
// anything else is transient.
func (c *client) connect(ctx context.Context, url, token string, onOpen func(), emit func(model.OrderEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream open failed: status %d", resp.StatusCode)
	}

	onOpen()
	return c.decode(resp.Body, emit)
}

// decode reads the text/event-stream line protocol. Only data fields matter
// to this feed; event names, ids, retry hints and comment keep-alives are
// ignored. A blank line dispatches the accumulated payload.
func (c *client) decode(body io.Reader, emit func(model.OrderEvent)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 16*1024), 1024*1024)

	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				c.dispatch(data, emit)
				data = data[:0]
			}
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, payload...)
		}
	}
	// A data fragment with no terminating blank line is an incomplete event
	// cut off by the disconnect; the framing rules say to discard it.

	if err := scanner.Err(); err != nil {
		return err
	}
	// Server closed a healthy stream; treated like any other disconnect.
	return io.ErrUnexpectedEOF
}

// dispatch decodes one payload. Undecodable or invalid payloads are dropped:
// pings and foreign message types are expected, not protocol violations.
func (c *client) dispatch(data []byte, emit func(model.OrderEvent)) {
	var evt model.OrderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Debug("dropping undecodable message", "error", err)
		return
	}
	if !evt.Valid() {
		c.logger.Debug("dropping invalid event", "order_id", evt.OrderID)
		return
	}
	emit(evt)
}
