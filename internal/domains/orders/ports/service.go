package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
)

// Service exposes the order lifecycle use cases driven by local requests
// and by inbound saga events.
type Service interface {
	// SubmitOrder persists a PENDING order with unpriced items and kicks off
	// the validation/pricing round trip. The returned order is an
	// acknowledgment; pricing arrives asynchronously.
	SubmitOrder(ctx context.Context, customerID int64, items []domain.ItemSpec) (*domain.Order, error)

	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter ListFilter, skip, limit int) ([]*domain.Order, error)

	// TransitionStatus applies the saga state machine. A transition to the
	// current status is a no-op that suppresses the outbound event. The
	// publish flag is false when reacting to a peer service's decision.
	TransitionStatus(ctx context.Context, id int64, status domain.Status, publish bool) (*domain.Order, error)

	// ApplyPriceQuote replaces the item set with the priced lines from the
	// product service. A missing order is dropped with a log, not an error.
	ApplyPriceQuote(ctx context.Context, id, customerID int64, items []domain.PricedItem, total decimal.Decimal) error

	// ReplaceItems reconciles the incoming item set against the existing one
	// and reports incremental quantity deltas downstream.
	ReplaceItems(ctx context.Context, id int64, items []domain.ItemChange) (*domain.Order, error)

	// CancelForCustomer cancels every order of the customer, best effort.
	// It returns the number of orders cancelled.
	CancelForCustomer(ctx context.Context, customerID int64) (int, error)

	// RemoveOrder deletes the order and publishes a deletion event carrying
	// the pre-delete item snapshot.
	RemoveOrder(ctx context.Context, id int64) error
}
