package migrations

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Run applies the order schema. Intended to replace adapter-level automigrate.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(
		&orderRecord{},
		&orderItemRecord{},
	)
}

// Order schema mirrors the orders Postgres adapter.
type orderRecord struct {
	ID         int64           `gorm:"primaryKey;column:id"`
	CustomerID int64           `gorm:"column:customer_id;index"`
	Status     string          `gorm:"column:status;type:varchar(32);index"`
	Total      decimal.Decimal `gorm:"column:total;type:numeric(12,2)"`
	Version    int             `gorm:"column:version"`
	CreatedAt  time.Time       `gorm:"column:created_at;index"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (orderRecord) TableName() string { return "orders" }

// Order item schema; rows are owned by their order and removed with it.
type orderItemRecord struct {
	ID        int64           `gorm:"primaryKey;column:id"`
	OrderID   int64           `gorm:"column:order_id;index"`
	ProductID int64           `gorm:"column:product_id;index"`
	Quantity  int32           `gorm:"column:quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2)"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2)"`
	Total     decimal.Decimal `gorm:"column:total;type:numeric(12,2)"`
}

func (orderItemRecord) TableName() string { return "order_items" }
