package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates order lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
)

var (
	ErrInvalidCustomerID = errors.New("customer id must be greater than zero")
	ErrInvalidProductID  = errors.New("product id must be greater than zero")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrInvalidStatus     = errors.New("order status is invalid")
	ErrInvalidTransition = errors.New("order status transition is not allowed")
	ErrEmptyItems        = errors.New("order must contain at least one item")
	ErrMissingPrice      = errors.New("unit price is required for a new order item")
)

// Order models the order aggregate coordinated by the saga.
type Order struct {
	ID         int64
	CustomerID int64
	Status     Status
	Total      decimal.Decimal
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Items      []OrderItem
}

// OrderItem is owned by exactly one Order; its lifetime is tied to it.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int32
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Total     decimal.Decimal
}

// ItemSpec is an unpriced order line as submitted by a customer.
type ItemSpec struct {
	ProductID int64
	Quantity  int32
}

// PricedItem is an order line carrying the unit price quoted by the product service.
type PricedItem struct {
	ProductID int64
	Quantity  int32
	UnitPrice decimal.Decimal
}

// ItemChange is an incoming line for item reconciliation. UnitPrice is
// required only when the product is not yet part of the order.
type ItemChange struct {
	ProductID int64
	Quantity  int32
	UnitPrice *decimal.Decimal
}

// ItemDelta is a per-product quantity adjustment derived from reconciliation.
type ItemDelta struct {
	ProductID int64
	Delta     int32
}

// NewOrder validates and constructs a pending order with unpriced items.
func NewOrder(customerID int64, specs []ItemSpec) (*Order, error) {
	if customerID <= 0 {
		return nil, ErrInvalidCustomerID
	}
	if len(specs) == 0 {
		return nil, ErrEmptyItems
	}
	items := make([]OrderItem, 0, len(specs))
	for _, spec := range specs {
		if spec.ProductID <= 0 {
			return nil, ErrInvalidProductID
		}
		if spec.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		items = append(items, OrderItem{ProductID: spec.ProductID, Quantity: spec.Quantity})
	}
	return &Order{
		CustomerID: customerID,
		Status:     StatusPending,
		Items:      items,
	}, nil
}

// IsValid reports whether the status belongs to the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status accepts no further saga transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the saga allows moving from s to next.
// A transition to the current status is always allowed; callers treat it as
// a no-op so redelivered events cannot fan out duplicate side effects.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusRejected || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCancelled || next == StatusCompleted
	default:
		return false
	}
}

// Transition moves the order to next, enforcing the saga transition table.
func (o *Order) Transition(next Status) error {
	if !next.IsValid() {
		return ErrInvalidStatus
	}
	if !o.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	o.Status = next
	return nil
}

// ApplyPricing replaces the item set with priced lines and recomputes totals.
func (o *Order) ApplyPricing(priced []PricedItem, total decimal.Decimal) {
	items := make([]OrderItem, 0, len(priced))
	for _, p := range priced {
		line := p.UnitPrice.Mul(decimal.NewFromInt32(p.Quantity))
		items = append(items, OrderItem{
			OrderID:   o.ID,
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
			LineTotal: line,
			Total:     line,
		})
	}
	o.Items = items
	o.Total = total
}

// ReconcileItems applies the incoming item set over the existing one:
// lines matching an existing product update quantity (and price when given),
// brand-new lines require a price, and existing lines absent from the
// incoming set are dropped. The incoming set is keyed by product, not
// ordered; duplicate product lines collapse last-wins. It returns the
// non-zero per-product quantity deltas. The aggregate is left untouched
// when an error is returned.
func (o *Order) ReconcileItems(incoming []ItemChange) ([]ItemDelta, error) {
	seen := make(map[int64]int, len(incoming))
	deduped := make([]ItemChange, 0, len(incoming))
	for _, in := range incoming {
		if idx, ok := seen[in.ProductID]; ok {
			deduped[idx] = in
			continue
		}
		seen[in.ProductID] = len(deduped)
		deduped = append(deduped, in)
	}
	incoming = deduped

	existing := make(map[int64]OrderItem, len(o.Items))
	for _, it := range o.Items {
		existing[it.ProductID] = it
	}

	for _, in := range incoming {
		if in.ProductID <= 0 {
			return nil, ErrInvalidProductID
		}
		if in.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if _, ok := existing[in.ProductID]; !ok && in.UnitPrice == nil {
			return nil, ErrMissingPrice
		}
	}

	oldQty := make(map[int64]int32, len(o.Items))
	for _, it := range o.Items {
		oldQty[it.ProductID] = it.Quantity
	}

	items := make([]OrderItem, 0, len(incoming))
	for _, in := range incoming {
		item, ok := existing[in.ProductID]
		if !ok {
			item = OrderItem{OrderID: o.ID, ProductID: in.ProductID}
		}
		item.Quantity = in.Quantity
		if in.UnitPrice != nil {
			item.UnitPrice = *in.UnitPrice
		}
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		item.Total = item.LineTotal
		items = append(items, item)
	}
	o.Items = items

	newQty := make(map[int64]int32, len(items))
	for _, it := range items {
		newQty[it.ProductID] = it.Quantity
	}
	for pid := range oldQty {
		if _, ok := newQty[pid]; !ok {
			newQty[pid] = 0
		}
	}

	deltas := make([]ItemDelta, 0, len(newQty))
	for pid, qty := range newQty {
		if d := qty - oldQty[pid]; d != 0 {
			deltas = append(deltas, ItemDelta{ProductID: pid, Delta: d})
		}
	}
	return deltas, nil
}

// ItemsTotal sums the line totals of the current item set.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal)
	}
	return total
}

// SnapshotItems returns a copy of the current item set, detached from the
// aggregate so it survives a subsequent cascade delete.
func (o *Order) SnapshotItems() []OrderItem {
	snapshot := make([]OrderItem, len(o.Items))
	copy(snapshot, o.Items)
	return snapshot
}
