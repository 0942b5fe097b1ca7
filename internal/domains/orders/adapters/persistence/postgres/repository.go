package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
)

var _ ports.Repository = (*Repository)(nil)

// Repository persists orders in PostgreSQL using GORM. Mutations commit
// under an optimistic version check: the UPDATE is conditioned on the
// version read by the caller and bumps it by one.
type Repository struct {
	db *gorm.DB
}

// NewRepository wires a PostgreSQL-backed repository. Caller manages DB lifecycle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type orderRecord struct {
	ID         int64           `gorm:"primaryKey;column:id"`
	CustomerID int64           `gorm:"column:customer_id;index"`
	Status     string          `gorm:"column:status;type:varchar(32);index"`
	Total      decimal.Decimal `gorm:"column:total;type:numeric(12,2)"`
	Version    int             `gorm:"column:version"`
	CreatedAt  time.Time       `gorm:"column:created_at;index"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
	Items      []itemRecord    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderRecord) TableName() string { return "orders" }

type itemRecord struct {
	ID        int64           `gorm:"primaryKey;column:id"`
	OrderID   int64           `gorm:"column:order_id;index"`
	ProductID int64           `gorm:"column:product_id;index"`
	Quantity  int32           `gorm:"column:quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2)"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2)"`
	Total     decimal.Decimal `gorm:"column:total;type:numeric(12,2)"`
}

func (itemRecord) TableName() string { return "order_items" }

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	var record orderRecord
	if err := r.db.WithContext(ctx).Preload("Items").First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return record.toDomain(), nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter, skip, limit int) ([]*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Preload("Items").Order("id")
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if skip > 0 {
		query = query.Offset(skip)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []orderRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	orders := make([]*domain.Order, 0, len(records))
	for i := range records {
		orders = append(orders, records[i].toDomain())
	}
	return orders, nil
}

// Create inserts a new order; status is forced to PENDING and the version
// counter starts at one.
func (r *Repository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.New("order is nil")
	}
	record := toRecord(order)
	record.ID = 0
	record.Status = string(domain.StatusPending)
	record.Version = 1
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	for i := range record.Items {
		record.Items[i].ID = 0
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return r.GetByID(ctx, record.ID)
}

// Update commits the aggregate under the optimistic version check and
// replaces the item set. A stale version fails with ErrConflict, distinctly
// from a missing row.
func (r *Repository) Update(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.New("order is nil")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&orderRecord{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]any{
				"status":     string(order.Status),
				"total":      order.Total,
				"version":    order.Version + 1,
				"updated_at": order.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&orderRecord{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ports.ErrNotFound
			}
			return ports.ErrConflict
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&itemRecord{}).Error; err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return nil
		}
		items := make([]itemRecord, 0, len(order.Items))
		for _, it := range order.Items {
			items = append(items, itemRecord{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				LineTotal: it.LineTotal,
				Total:     it.Total,
			})
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, order.ID)
}

// Delete removes the order and its items, returning the deleted aggregate so
// the caller can snapshot it.
func (r *Repository) Delete(ctx context.Context, id int64) (*domain.Order, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}
	deleted, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&itemRecord{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&orderRecord{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ports.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Repository) ensureDB() error {
	if r == nil || r.db == nil {
		return errors.New("postgres order repository not configured")
	}
	return nil
}

func toRecord(order *domain.Order) orderRecord {
	record := orderRecord{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Total:      order.Total,
		Version:    order.Version,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	record.Items = make([]itemRecord, 0, len(order.Items))
	for _, it := range order.Items {
		record.Items = append(record.Items, itemRecord{
			ID:        it.ID,
			OrderID:   it.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
			Total:     it.Total,
		})
	}
	return record
}

func (r orderRecord) toDomain() *domain.Order {
	order := &domain.Order{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		Status:     domain.Status(r.Status),
		Total:      r.Total,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	order.Items = make([]domain.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        it.ID,
			OrderID:   it.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
			Total:     it.Total,
		})
	}
	return order
}
