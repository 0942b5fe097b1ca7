package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository is an in-memory order persistence adapter. It honors the same
// optimistic-version contract as the postgres adapter so tests and the
// degraded (no database) mode behave identically.
type Repository struct {
	mu         sync.RWMutex
	orders     map[int64]*domain.Order
	nextID     int64
	nextItemID int64
}

func NewRepository() *Repository {
	return &Repository{orders: map[int64]*domain.Order{}}
}

func (r *Repository) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return clone(order), nil
}

func (r *Repository) List(_ context.Context, filter ports.ListFilter, skip, limit int) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.CustomerID != nil && order.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		list = append(list, clone(order))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if skip > 0 {
		if skip >= len(list) {
			return []*domain.Order{}, nil
		}
		list = list[skip:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (r *Repository) Create(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("order is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := clone(order)
	r.nextID++
	stored.ID = r.nextID
	stored.Status = domain.StatusPending
	stored.Version = 1
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	for i := range stored.Items {
		r.nextItemID++
		stored.Items[i].ID = r.nextItemID
		stored.Items[i].OrderID = stored.ID
	}
	r.orders[stored.ID] = stored
	return clone(stored), nil
}

func (r *Repository) Update(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, errors.New("order is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if current.Version != order.Version {
		return nil, ports.ErrConflict
	}
	stored := clone(order)
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	for i := range stored.Items {
		if stored.Items[i].ID == 0 {
			r.nextItemID++
			stored.Items[i].ID = r.nextItemID
		}
		stored.Items[i].OrderID = stored.ID
	}
	r.orders[stored.ID] = stored
	return clone(stored), nil
}

func (r *Repository) Delete(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	delete(r.orders, id)
	return clone(order), nil
}

func clone(order *domain.Order) *domain.Order {
	copied := *order
	copied.Items = make([]domain.OrderItem, len(order.Items))
	copy(copied.Items, order.Items)
	return &copied
}
