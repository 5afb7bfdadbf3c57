package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog row. The cart and checkout flows only ever read it;
// catalog management lives outside this service.
type Product struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Stock     int             `gorm:"column:stock;not null;default:0"`
	// No default tag here: gorm skips zero values on insert when one is
	// set, which would silently turn IsActive=false into true. The column
	// default lives in the migration.
	IsActive  bool            `gorm:"column:is_active;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
