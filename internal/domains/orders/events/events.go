// Package events defines the routing-key contracts exchanged with the
// customer and product services. Every payload is a typed struct validated
// at the consumer boundary instead of an ad hoc map.
package events

import (
	"errors"
	"time"
)

// Routing keys published by the order service.
const (
	CustomerValidateRequest = "customer.validate_request"
	OrderRequestPrice       = "order.request_price"
	OrderReadyForStock      = "order.ready_for_stock"
	OrderCreated            = "order.created"
	OrderUpdated            = "order.updated"
	OrderItemsDelta         = "order.items_delta"
	OrderCancelled          = "order.cancelled"
	OrderRejected           = "order.rejected"
	OrderDeleted            = "order.deleted"
)

// Routing keys consumed by the order service.
const (
	CustomerValidated    = "customer.validated"
	OrderPriceCalculated = "order.price_calculated"
	OrderConfirmed       = "order.confirmed"
	CustomerDeleted      = "customer.deleted"
	CustomerUpdateOrder  = "customer.update_order"
	CustomerDeleteOrder  = "customer.delete_order"
)

var (
	ErrMissingOrderID    = errors.New("payload is missing order_id")
	ErrMissingCustomerID = errors.New("payload is missing customer_id")
	ErrMissingItems      = errors.New("payload is missing items")
)

// RequestItem is an unpriced line sent out for price calculation.
type RequestItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// PricedItem is a line carrying the unit price quoted by the product service.
type PricedItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// SnapshotItem is a fully priced line as carried by order state events.
type SnapshotItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// QuantityDelta is an incremental per-product stock adjustment.
type QuantityDelta struct {
	ProductID int64 `json:"product_id"`
	Delta     int32 `json:"delta"`
}

// ChangeItem is an incoming line for an item update; UnitPrice is optional
// for lines that already exist on the order.
type ChangeItem struct {
	ProductID int64    `json:"product_id"`
	Quantity  int32    `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

// --- Outbound payloads ---

// ValidateRequestPayload asks the customer service to confirm the customer.
type ValidateRequestPayload struct {
	OrderID    int64 `json:"order_id"`
	CustomerID int64 `json:"customer_id"`
}

// RequestPricePayload asks the product service for a price quote.
type RequestPricePayload struct {
	OrderID    int64         `json:"order_id"`
	CustomerID int64         `json:"customer_id"`
	Items      []RequestItem `json:"items"`
}

// ReadyForStockPayload hands a validated, priced order to the product
// service for stock reservation.
type ReadyForStockPayload struct {
	OrderID    int64        `json:"order_id"`
	CustomerID int64        `json:"customer_id"`
	Items      []PricedItem `json:"items"`
	Total      float64      `json:"total"`
}

// CreatedPayload announces a fully priced order.
type CreatedPayload struct {
	ID         int64          `json:"id"`
	CustomerID int64          `json:"customer_id"`
	Status     string         `json:"status"`
	Items      []SnapshotItem `json:"items"`
	CreatedAt  time.Time      `json:"created_at"`
}

// UpdatedPayload carries the full item snapshot after a mutation.
type UpdatedPayload struct {
	ID        int64          `json:"id"`
	Status    string         `json:"status"`
	Items     []SnapshotItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StatusPayload is the shape of order.cancelled and order.rejected.
type StatusPayload struct {
	ID        int64          `json:"id"`
	Items     []SnapshotItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ItemsDeltaPayload lets the inventory service apply an incremental
// adjustment instead of re-deriving it from a full diff.
type ItemsDeltaPayload struct {
	ID        int64           `json:"id"`
	Deltas    []QuantityDelta `json:"deltas"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DeletedPayload carries the pre-delete snapshot of a removed order.
type DeletedPayload struct {
	ID         int64          `json:"id"`
	CustomerID int64          `json:"customer_id"`
	Status     string         `json:"status"`
	Items      []SnapshotItem `json:"items"`
	DeletedAt  time.Time      `json:"deleted_at"`
}

// --- Inbound payloads ---

// CustomerValidatedPayload confirms the customer exists.
type CustomerValidatedPayload struct {
	OrderID    int64 `json:"order_id"`
	CustomerID int64 `json:"customer_id"`
}

func (p CustomerValidatedPayload) Validate() error {
	if p.OrderID <= 0 {
		return ErrMissingOrderID
	}
	if p.CustomerID <= 0 {
		return ErrMissingCustomerID
	}
	return nil
}

// PriceCalculatedPayload delivers the quote computed by the product service.
type PriceCalculatedPayload struct {
	OrderID    int64        `json:"order_id"`
	CustomerID int64        `json:"customer_id"`
	Items      []PricedItem `json:"items"`
	Total      float64      `json:"total"`
}

func (p PriceCalculatedPayload) Validate() error {
	if p.OrderID <= 0 {
		return ErrMissingOrderID
	}
	if p.CustomerID <= 0 {
		return ErrMissingCustomerID
	}
	if len(p.Items) == 0 {
		return ErrMissingItems
	}
	return nil
}

// ConfirmedPayload signals the peer service reserved stock for the order.
type ConfirmedPayload struct {
	OrderID int64 `json:"order_id"`
}

func (p ConfirmedPayload) Validate() error {
	if p.OrderID <= 0 {
		return ErrMissingOrderID
	}
	return nil
}

// RejectedPayload signals a peer service rejected the order.
type RejectedPayload struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

func (p RejectedPayload) Validate() error {
	if p.OrderID <= 0 {
		return ErrMissingOrderID
	}
	return nil
}

// CustomerDeletedPayload signals a customer was removed upstream.
type CustomerDeletedPayload struct {
	ID int64 `json:"id"`
}

func (p CustomerDeletedPayload) Validate() error {
	if p.ID <= 0 {
		return ErrMissingCustomerID
	}
	return nil
}

// UpdateOrderPayload is a customer-requested item update.
type UpdateOrderPayload struct {
	OrderID int64        `json:"order_id"`
	Items   []ChangeItem `json:"items"`
}

func (p UpdateOrderPayload) Validate() error {
	if p.OrderID <= 0 {
		return ErrMissingOrderID
	}
	if len(p.Items) == 0 {
		return ErrMissingItems
	}
	return nil
}

// DeleteOrderPayload is a customer-requested order deletion; the order side
// treats it as a soft cancellation.
type DeleteOrderPayload struct {
	OrderID int64 `json:"order_id"`
}

func (p DeleteOrderPayload) Validate() error {
	if p.OrderID <= 0 {
		return ErrMissingOrderID
	}
	return nil
}
