package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ordersfe/livefeed/internal/model"
)

// ListCustomerOrders fetches the full order list for a customer. Used to
// seed or replace the live collection; the shape matches what the
// reconciler merges into.
func (c *Client) ListCustomerOrders(ctx context.Context, customerID string) ([]model.Order, error) {
	var orders []model.Order
	path := "/api/processing/customer/" + url.PathEscape(customerID)
	if err := c.get(ctx, path, &orders); err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return orders, nil
}

// CreateOrder submits a new order. Not retried: a duplicate submission
// would create a second order.
func (c *Client) CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	var order model.Order
	body, err := c.doRequest(ctx, http.MethodPost, "/api/orders", req, false)
	if err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	if err := json.Unmarshal(body, &order); err != nil {
		return model.Order{}, fmt.Errorf("create order: unmarshal response: %w", err)
	}
	return order, nil
}
