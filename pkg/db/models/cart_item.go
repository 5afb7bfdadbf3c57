package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one product a user intends to buy. Price is snapshotted when the
// item is first added and never tracks later catalog changes. The composite
// unique index keeps one row per (user, product); adding the same product
// again increments Quantity instead of inserting.
type CartItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_cart_items_user_product"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_user_product"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
