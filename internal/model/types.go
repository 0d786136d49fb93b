package model

import (
	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state as reported by the processing
// service. Unknown values are carried verbatim rather than rejected so a
// newer backend does not break older clients.
type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusFailed     OrderStatus = "FAILED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// Known reports whether s is one of the documented lifecycle states.
func (s OrderStatus) Known() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// OrderEvent is a single decoded push from the notification stream.
// Transient: it exists for one reconciliation step and is never stored.
type OrderEvent struct {
	OrderID   string      `json:"orderId"`
	UserID    string      `json:"userId"`
	Item      string      `json:"item"`
	Quantity  int         `json:"quantity"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	Timestamp string      `json:"timestamp"`
}

// Valid reports whether the event satisfies the wire contract. Events that
// fail this check are dropped the same way malformed JSON is dropped.
func (e OrderEvent) Valid() bool {
	return e.OrderID != "" && e.Quantity >= 0 && e.Price >= 0
}

// Order is the durable client-side projection of a customer order. Price and
// TotalAmount are fixed two-decimal strings to match the backend's BigDecimal
// serialization and avoid binary float drift on money values.
type Order struct {
	OrderID     string      `json:"orderId"`
	CustomerID  string      `json:"customerId"`
	ProductID   string      `json:"productId"`
	Quantity    int         `json:"quantity"`
	Price       string      `json:"price"`
	TotalAmount string      `json:"totalAmount"`
	CreatedAt   string      `json:"createdAt"`
	ProcessedAt string      `json:"processedAt"`
	Status      OrderStatus `json:"status"`
}

// OrderFromEvent maps a stream event to its order projection.
//
// TotalAmount is always recomputed as price x quantity. Both timestamps are
// set from the event: the stream carries processing events only, so the
// client does not distinguish created from processed time.
func OrderFromEvent(evt OrderEvent) Order {
	price := decimal.NewFromFloat(evt.Price)
	total := price.Mul(decimal.NewFromInt(int64(evt.Quantity)))

	return Order{
		OrderID:     evt.OrderID,
		CustomerID:  evt.UserID,
		ProductID:   evt.Item,
		Quantity:    evt.Quantity,
		Price:       price.StringFixed(2),
		TotalAmount: total.StringFixed(2),
		CreatedAt:   evt.Timestamp,
		ProcessedAt: evt.Timestamp,
		Status:      evt.Status,
	}
}

// OrderRequest is the payload for creating a new order. Price is sent as a
// string for the same BigDecimal reasons as Order.
type OrderRequest struct {
	CustomerID string `json:"customerId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	Price      string `json:"price"`
}
