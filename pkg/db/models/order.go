package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trendhive/storefront-backend/pkg/enums"
	"github.com/trendhive/storefront-backend/pkg/types"
)

// Order is the immutable record of a completed purchase. The composite unique
// index on (user_id, payment_intent_id) is the storage-layer idempotency
// guard: replaying checkout with the same intent can never insert twice.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex:idx_orders_order_number"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_orders_user_payment_intent"`
	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentIntentID *string             `gorm:"column:payment_intent_id;uniqueIndex:idx_orders_user_payment_intent"`
	ShippingAddress types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingFee     decimal.Decimal     `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	Tax             decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
