package ports

import (
	"context"
	"errors"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
)

var (
	// ErrNotFound signals the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict signals a commit against a stale aggregate version.
	ErrConflict = errors.New("order version conflict")
)

// ListFilter restricts a listing to orders matching every set field exactly.
type ListFilter struct {
	CustomerID *int64
	Status     *domain.Status
}

// Repository persists the order aggregate with optimistic-version commits.
// Update and Delete must distinguish a stale version (ErrConflict) from a
// missing row (ErrNotFound); deleting an order cascades to its items.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter, skip, limit int) ([]*domain.Order, error)
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) (*domain.Order, error)
	Delete(ctx context.Context, id int64) (*domain.Order, error)
}
