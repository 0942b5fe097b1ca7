package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
	"github.com/payetonkawa/order-api/internal/domains/orders/events"
	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
)

// Service coordinates the order lifecycle saga: it owns the status state
// machine, the item reconciliation flow, and the shaping of outbound events.
// Mutations are committed to the repository before the matching event is
// published; a transport failure never rolls back a committed mutation.
type Service struct {
	repo      ports.Repository
	publisher ports.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the order service with its dependencies.
func NewService(repo ports.Repository, publisher ports.Publisher, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: publisher,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SubmitOrder persists a PENDING order with unpriced items, then asks the
// customer service to validate the customer and the product service to quote
// prices. The returned order is only an acknowledgment.
func (s *Service) SubmitOrder(ctx context.Context, customerID int64, items []domain.ItemSpec) (*domain.Order, error) {
	order, err := domain.NewOrder(customerID, items)
	if err != nil {
		return nil, mapError(err)
	}
	saved, err := s.repo.Create(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}

	s.publish(ctx, events.CustomerValidateRequest, events.ValidateRequestPayload{
		OrderID:    saved.ID,
		CustomerID: saved.CustomerID,
	})

	requestItems := make([]events.RequestItem, 0, len(saved.Items))
	for _, it := range saved.Items {
		requestItems = append(requestItems, events.RequestItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	s.publish(ctx, events.OrderRequestPrice, events.RequestPricePayload{
		OrderID:    saved.ID,
		CustomerID: saved.CustomerID,
		Items:      requestItems,
	})

	s.logger.InfoContext(ctx, "order submitted, awaiting validation and pricing",
		slog.Int64("order.id", saved.ID), slog.Int64("customer.id", saved.CustomerID))
	return saved, nil
}

// GetOrder loads a single order aggregate.
func (s *Service) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return order, nil
}

// ListOrders returns orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter, skip, limit int) ([]*domain.Order, error) {
	orders, err := s.repo.List(ctx, filter, skip, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return orders, nil
}

// TransitionStatus applies the state machine to the order. Requesting the
// current status is a no-op that returns the unchanged aggregate and
// suppresses the outbound event, so redelivered saga events cannot cause
// event storms. When publish is true, exactly one event is emitted, chosen
// by the new status.
func (s *Service) TransitionStatus(ctx context.Context, id int64, status domain.Status, publish bool) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	if order.Status == status {
		s.logger.InfoContext(ctx, "order already in requested status, no-op",
			slog.Int64("order.id", id), slog.String("status", string(status)))
		return order, nil
	}

	from := order.Status
	if err := order.Transition(status); err != nil {
		return nil, mapError(err)
	}
	order.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}

	if publish {
		s.publishStatus(ctx, updated)
	}
	s.logger.InfoContext(ctx, "order status updated",
		slog.Int64("order.id", updated.ID),
		slog.String("from", string(from)), slog.String("to", string(updated.Status)))
	return updated, nil
}

func (s *Service) publishStatus(ctx context.Context, order *domain.Order) {
	snapshot := snapshotItems(order.Items)
	switch order.Status {
	case domain.StatusCancelled:
		s.publish(ctx, events.OrderCancelled, events.StatusPayload{
			ID: order.ID, Items: snapshot, UpdatedAt: order.UpdatedAt,
		})
	case domain.StatusRejected:
		s.publish(ctx, events.OrderRejected, events.StatusPayload{
			ID: order.ID, Items: snapshot, UpdatedAt: order.UpdatedAt,
		})
	default:
		s.publish(ctx, events.OrderUpdated, events.UpdatedPayload{
			ID: order.ID, Status: string(order.Status), Items: snapshot, UpdatedAt: order.UpdatedAt,
		})
	}
}

// ApplyPriceQuote replaces the order's items with the priced lines from the
// product service and publishes the order.created event that unblocks the
// next saga step. Pricing for a vanished order is dropped with a log: the
// order may have been legitimately removed while the quote was in flight.
func (s *Service) ApplyPriceQuote(ctx context.Context, id, customerID int64, items []domain.PricedItem, total decimal.Decimal) error {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.logger.WarnContext(ctx, "price quote for unknown order, dropped", slog.Int64("order.id", id))
			return nil
		}
		return mapError(err)
	}

	order.ApplyPricing(items, total)
	order.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, order)
	if err != nil {
		return mapError(err)
	}

	s.publish(ctx, events.OrderCreated, events.CreatedPayload{
		ID:         updated.ID,
		CustomerID: customerID,
		Status:     string(updated.Status),
		Items:      snapshotItems(updated.Items),
		CreatedAt:  updated.CreatedAt,
	})
	s.logger.InfoContext(ctx, "order priced",
		slog.Int64("order.id", updated.ID), slog.String("total", total.String()))
	return nil
}

// ReplaceItems reconciles the incoming item set against the stored one,
// commits, and publishes the full snapshot; a second, smaller delta event is
// emitted only when at least one per-product quantity actually changed.
func (s *Service) ReplaceItems(ctx context.Context, id int64, items []domain.ItemChange) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	deltas, err := order.ReconcileItems(items)
	if err != nil {
		return nil, mapError(err)
	}
	order.Total = order.ItemsTotal()
	order.UpdatedAt = s.now()
	updated, err := s.repo.Update(ctx, order)
	if err != nil {
		return nil, mapError(err)
	}

	s.publish(ctx, events.OrderUpdated, events.UpdatedPayload{
		ID:        updated.ID,
		Status:    string(updated.Status),
		Items:     snapshotItems(updated.Items),
		UpdatedAt: updated.UpdatedAt,
	})
	if len(deltas) > 0 {
		quantityDeltas := make([]events.QuantityDelta, 0, len(deltas))
		for _, d := range deltas {
			quantityDeltas = append(quantityDeltas, events.QuantityDelta{ProductID: d.ProductID, Delta: d.Delta})
		}
		s.publish(ctx, events.OrderItemsDelta, events.ItemsDeltaPayload{
			ID: updated.ID, Deltas: quantityDeltas, UpdatedAt: updated.UpdatedAt,
		})
	}
	s.logger.InfoContext(ctx, "order items updated",
		slog.Int64("order.id", updated.ID), slog.Int("deltas", len(deltas)))
	return updated, nil
}

// CancelForCustomer cancels every order belonging to the customer. The
// cascade is best effort: an order concurrently removed or already terminal
// is logged and skipped, it never aborts the rest of the batch.
func (s *Service) CancelForCustomer(ctx context.Context, customerID int64) (int, error) {
	filter := ports.ListFilter{CustomerID: &customerID}
	orders, err := s.repo.List(ctx, filter, 0, 0)
	if err != nil {
		return 0, mapError(err)
	}
	s.logger.InfoContext(ctx, "cancelling orders for customer",
		slog.Int64("customer.id", customerID), slog.Int("orders", len(orders)))

	cancelled := 0
	for _, order := range orders {
		if _, err := s.TransitionStatus(ctx, order.ID, domain.StatusCancelled, true); err != nil {
			s.logger.WarnContext(ctx, "order skipped during customer cascade",
				slog.Int64("order.id", order.ID), slog.String("error", err.Error()))
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// RemoveOrder deletes the order. The item snapshot is captured before the
// cascade delete executes because the deletion event must carry the items
// that no longer exist once the call returns.
func (s *Service) RemoveOrder(ctx context.Context, id int64) error {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapError(err)
	}
	snapshot := order.SnapshotItems()

	if _, err := s.repo.Delete(ctx, id); err != nil {
		return mapError(err)
	}

	s.publish(ctx, events.OrderDeleted, events.DeletedPayload{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Items:      snapshotItems(snapshot),
		DeletedAt:  s.now(),
	})
	s.logger.InfoContext(ctx, "order deleted", slog.Int64("order.id", id))
	return nil
}

// publish is best effort: local state is the source of truth, so a transport
// failure is logged and swallowed rather than surfaced to the caller.
func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, payload); err != nil {
		s.logger.ErrorContext(ctx, "event publish failed",
			slog.String("routing_key", routingKey), slog.String("error", err.Error()))
	}
}

func snapshotItems(items []domain.OrderItem) []events.SnapshotItem {
	snapshot := make([]events.SnapshotItem, 0, len(items))
	for _, it := range items {
		snapshot = append(snapshot, events.SnapshotItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			LineTotal: it.LineTotal.InexactFloat64(),
		})
	}
	return snapshot
}

var _ ports.Service = (*Service)(nil)
