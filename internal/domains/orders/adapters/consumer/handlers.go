// Package consumer translates inbound saga events into order service calls.
// Every handler follows the same containment contract: a malformed payload
// is logged and dropped, a missing order is logged as a likely
// already-resolved race, and any other failure is logged as unexpected.
// No error escapes a handler, so one bad message cannot stop the loop.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
	"github.com/payetonkawa/order-api/internal/domains/orders/events"
	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
	"github.com/payetonkawa/order-api/internal/platform/rabbitmq"
)

// Handlers dispatches consumed deliveries to the order service.
type Handlers struct {
	svc       ports.Service
	publisher ports.Publisher
	logger    *slog.Logger
}

// New wires the inbound handlers. The publisher is used for the enriched
// stock request emitted after customer validation.
func New(svc ports.Service, publisher ports.Publisher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, publisher: publisher, logger: logger}
}

// Handle routes one delivery to the handler matching its routing key.
// Events addressed to other services on the shared exchange are ignored.
func (h *Handlers) Handle(ctx context.Context, d rabbitmq.Delivery) {
	switch d.RoutingKey {
	case events.CustomerValidated:
		h.handleCustomerValidated(ctx, d.Payload)
	case events.OrderPriceCalculated:
		h.handlePriceCalculated(ctx, d.Payload)
	case events.OrderConfirmed:
		h.handleConfirmed(ctx, d.Payload)
	case events.OrderRejected:
		h.handleRejected(ctx, d.Payload)
	case events.CustomerDeleted:
		h.handleCustomerDeleted(ctx, d.Payload)
	case events.CustomerUpdateOrder:
		h.handleUpdateOrder(ctx, d.Payload)
	case events.CustomerDeleteOrder:
		h.handleDeleteOrder(ctx, d.Payload)
	default:
		h.logger.DebugContext(ctx, "event ignored", slog.String("routing_key", d.RoutingKey))
	}
}

// handleCustomerValidated reacts to the customer service confirming the
// customer exists: the status stays PENDING (no-op transition, no rebroadcast)
// and an enriched order.ready_for_stock is published for the product service.
func (h *Handlers) handleCustomerValidated(ctx context.Context, body json.RawMessage) {
	var payload events.CustomerValidatedPayload
	if !h.decode(ctx, events.CustomerValidated, body, &payload) {
		return
	}
	order, err := h.svc.TransitionStatus(ctx, payload.OrderID, domain.StatusPending, false)
	if err != nil {
		h.contain(ctx, events.CustomerValidated, payload.OrderID, err)
		return
	}

	items := make([]events.PricedItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, events.PricedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
		})
	}
	if err := h.publisher.Publish(ctx, events.OrderReadyForStock, events.ReadyForStockPayload{
		OrderID:    order.ID,
		CustomerID: payload.CustomerID,
		Items:      items,
		Total:      order.Total.InexactFloat64(),
	}); err != nil {
		h.logger.ErrorContext(ctx, "stock request publish failed",
			slog.Int64("order.id", order.ID), slog.String("error", err.Error()))
		return
	}
	h.logger.InfoContext(ctx, "customer validated, order handed to stock reservation",
		slog.Int64("order.id", order.ID))
}

// handlePriceCalculated applies the quote computed by the product service.
func (h *Handlers) handlePriceCalculated(ctx context.Context, body json.RawMessage) {
	var payload events.PriceCalculatedPayload
	if !h.decode(ctx, events.OrderPriceCalculated, body, &payload) {
		return
	}
	priced := make([]domain.PricedItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		priced = append(priced, domain.PricedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: decimal.NewFromFloat(it.UnitPrice),
		})
	}
	if err := h.svc.ApplyPriceQuote(ctx, payload.OrderID, payload.CustomerID, priced, decimal.NewFromFloat(payload.Total)); err != nil {
		h.contain(ctx, events.OrderPriceCalculated, payload.OrderID, err)
	}
}

// handleConfirmed records the stock reservation decided by the product
// service. The peer already broadcast the fact, so publish stays false.
func (h *Handlers) handleConfirmed(ctx context.Context, body json.RawMessage) {
	var payload events.ConfirmedPayload
	if !h.decode(ctx, events.OrderConfirmed, body, &payload) {
		return
	}
	if _, err := h.svc.TransitionStatus(ctx, payload.OrderID, domain.StatusConfirmed, false); err != nil {
		h.contain(ctx, events.OrderConfirmed, payload.OrderID, err)
		return
	}
	h.logger.InfoContext(ctx, "order confirmed, stock reserved", slog.Int64("order.id", payload.OrderID))
}

// handleRejected records a rejection decided by a peer service, without
// rebroadcasting it.
func (h *Handlers) handleRejected(ctx context.Context, body json.RawMessage) {
	var payload events.RejectedPayload
	if !h.decode(ctx, events.OrderRejected, body, &payload) {
		return
	}
	if _, err := h.svc.TransitionStatus(ctx, payload.OrderID, domain.StatusRejected, false); err != nil {
		h.contain(ctx, events.OrderRejected, payload.OrderID, err)
		return
	}
	h.logger.WarnContext(ctx, "order rejected",
		slog.Int64("order.id", payload.OrderID), slog.String("reason", payload.Reason))
}

// handleCustomerDeleted cancels every order of the deleted customer. The
// cancellation decision is made locally, so the cascade publishes
// order.cancelled for each affected order.
func (h *Handlers) handleCustomerDeleted(ctx context.Context, body json.RawMessage) {
	var payload events.CustomerDeletedPayload
	if !h.decode(ctx, events.CustomerDeleted, body, &payload) {
		return
	}
	cancelled, err := h.svc.CancelForCustomer(ctx, payload.ID)
	if err != nil {
		h.contain(ctx, events.CustomerDeleted, payload.ID, err)
		return
	}
	h.logger.InfoContext(ctx, "orders cancelled for deleted customer",
		slog.Int64("customer.id", payload.ID), slog.Int("cancelled", cancelled))
}

// handleUpdateOrder applies a customer-requested item update.
func (h *Handlers) handleUpdateOrder(ctx context.Context, body json.RawMessage) {
	var payload events.UpdateOrderPayload
	if !h.decode(ctx, events.CustomerUpdateOrder, body, &payload) {
		return
	}
	changes := make([]domain.ItemChange, 0, len(payload.Items))
	for _, it := range payload.Items {
		change := domain.ItemChange{ProductID: it.ProductID, Quantity: it.Quantity}
		if it.UnitPrice != nil {
			price := decimal.NewFromFloat(*it.UnitPrice)
			change.UnitPrice = &price
		}
		changes = append(changes, change)
	}
	if _, err := h.svc.ReplaceItems(ctx, payload.OrderID, changes); err != nil {
		h.contain(ctx, events.CustomerUpdateOrder, payload.OrderID, err)
		return
	}
	h.logger.InfoContext(ctx, "order items updated on customer request",
		slog.Int64("order.id", payload.OrderID))
}

// handleDeleteOrder soft-cancels the order instead of physically deleting
// it; this cancellation is a local decision and is broadcast.
func (h *Handlers) handleDeleteOrder(ctx context.Context, body json.RawMessage) {
	var payload events.DeleteOrderPayload
	if !h.decode(ctx, events.CustomerDeleteOrder, body, &payload) {
		return
	}
	if _, err := h.svc.TransitionStatus(ctx, payload.OrderID, domain.StatusCancelled, true); err != nil {
		h.contain(ctx, events.CustomerDeleteOrder, payload.OrderID, err)
		return
	}
	h.logger.InfoContext(ctx, "order cancelled on customer request",
		slog.Int64("order.id", payload.OrderID))
}

type validatable interface {
	Validate() error
}

// decode parses and validates the payload; on failure it logs and reports
// the message as dropped.
func (h *Handlers) decode(ctx context.Context, routingKey string, body json.RawMessage, target validatable) bool {
	if err := json.Unmarshal(body, target); err != nil {
		h.logger.WarnContext(ctx, "malformed payload dropped",
			slog.String("routing_key", routingKey), slog.String("error", err.Error()))
		return false
	}
	if err := target.Validate(); err != nil {
		h.logger.WarnContext(ctx, "incomplete payload dropped",
			slog.String("routing_key", routingKey), slog.String("error", err.Error()))
		return false
	}
	return true
}

// contain absorbs a handler failure. A missing order usually means a
// concurrent operation already resolved it; anything else is unexpected but
// still swallowed so the message is acknowledged, not requeued.
func (h *Handlers) contain(ctx context.Context, routingKey string, id int64, err error) {
	if errors.Is(err, ports.ErrNotFound) {
		h.logger.WarnContext(ctx, "order not found, likely already resolved",
			slog.String("routing_key", routingKey), slog.Int64("id", id))
		return
	}
	h.logger.ErrorContext(ctx, "unexpected handler failure, message dropped",
		slog.String("routing_key", routingKey), slog.Int64("id", id), slog.String("error", err.Error()))
}
