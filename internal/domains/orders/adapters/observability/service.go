package observability

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	ordersdomain "github.com/payetonkawa/order-api/internal/domains/orders/domain"
	ordersports "github.com/payetonkawa/order-api/internal/domains/orders/ports"
)

const tracerName = "github.com/payetonkawa/order-api/internal/domains/orders/adapters/observability/service"

// Service decorates the order service with tracing, logging, and metrics.
type Service struct {
	inner   ordersports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wraps the core order service.
func New(inner ordersports.Service, opts ...Option) ordersports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return s
}

func (s *Service) SubmitOrder(ctx context.Context, customerID int64, items []ordersdomain.ItemSpec) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.SubmitOrder",
		trace.WithAttributes(attribute.Int64("customer.id", customerID), attribute.Int("items.count", len(items))))
	defer span.End()

	result, err := s.inner.SubmitOrder(ctx, customerID, items)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to submit order", slog.Int64("customer.id", customerID))
	}
	s.metrics.recordSubmitted(ctx)
	return result, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	result, err := s.inner.GetOrder(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load order", slog.Int64("order.id", id))
	}
	return result, nil
}

func (s *Service) ListOrders(ctx context.Context, filter ordersports.ListFilter, skip, limit int) ([]*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	result, err := s.inner.ListOrders(ctx, filter, skip, limit)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to list orders")
	}
	span.SetAttributes(attribute.Int("orders.count", len(result)))
	return result, nil
}

func (s *Service) TransitionStatus(ctx context.Context, id int64, status ordersdomain.Status, publish bool) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.TransitionStatus",
		trace.WithAttributes(
			attribute.Int64("order.id", id),
			attribute.String("order.status", string(status)),
			attribute.Bool("publish", publish)))
	defer span.End()

	result, err := s.inner.TransitionStatus(ctx, id, status, publish)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to transition order",
			slog.Int64("order.id", id), slog.String("status", string(status)))
	}
	s.metrics.recordTransition(ctx, result.Status)
	return result, nil
}

func (s *Service) ApplyPriceQuote(ctx context.Context, id, customerID int64, items []ordersdomain.PricedItem, total decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.ApplyPriceQuote",
		trace.WithAttributes(attribute.Int64("order.id", id), attribute.String("order.total", total.String())))
	defer span.End()

	if err := s.inner.ApplyPriceQuote(ctx, id, customerID, items, total); err != nil {
		return s.handleError(ctx, span, err, "failed to apply price quote", slog.Int64("order.id", id))
	}
	return nil
}

func (s *Service) ReplaceItems(ctx context.Context, id int64, items []ordersdomain.ItemChange) (*ordersdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ReplaceItems",
		trace.WithAttributes(attribute.Int64("order.id", id), attribute.Int("items.count", len(items))))
	defer span.End()

	result, err := s.inner.ReplaceItems(ctx, id, items)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to replace order items", slog.Int64("order.id", id))
	}
	return result, nil
}

func (s *Service) CancelForCustomer(ctx context.Context, customerID int64) (int, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelForCustomer",
		trace.WithAttributes(attribute.Int64("customer.id", customerID)))
	defer span.End()

	cancelled, err := s.inner.CancelForCustomer(ctx, customerID)
	if err != nil {
		return 0, s.handleError(ctx, span, err, "failed customer cancellation cascade", slog.Int64("customer.id", customerID))
	}
	span.SetAttributes(attribute.Int("orders.cancelled", cancelled))
	return cancelled, nil
}

func (s *Service) RemoveOrder(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.RemoveOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := s.inner.RemoveOrder(ctx, id); err != nil {
		return s.handleError(ctx, span, err, "failed to remove order", slog.Int64("order.id", id))
	}
	s.metrics.recordRemoved(ctx)
	return nil
}

func (s *Service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func (s *Service) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.logError(ctx, msg, err, attrs...)
	return err
}

type serviceMetrics struct {
	ordersSubmitted   metric.Int64Counter
	statusTransitions metric.Int64Counter
	ordersRemoved     metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	submitted, _ := m.Int64Counter("orders.service.submitted", metric.WithDescription("Number of orders submitted"))
	transitions, _ := m.Int64Counter("orders.service.status_transitions", metric.WithDescription("Number of status transitions"))
	removed, _ := m.Int64Counter("orders.service.removed", metric.WithDescription("Number of orders removed"))
	return serviceMetrics{ordersSubmitted: submitted, statusTransitions: transitions, ordersRemoved: removed}
}

func (m serviceMetrics) recordSubmitted(ctx context.Context) {
	if m.ordersSubmitted != nil {
		m.ordersSubmitted.Add(ctx, 1)
	}
}

func (m serviceMetrics) recordTransition(ctx context.Context, status ordersdomain.Status) {
	if m.statusTransitions != nil {
		m.statusTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("order.status", string(status))))
	}
}

func (m serviceMetrics) recordRemoved(ctx context.Context) {
	if m.ordersRemoved != nil {
		m.ordersRemoved.Add(ctx, 1)
	}
}

var _ ordersports.Service = (*Service)(nil)
