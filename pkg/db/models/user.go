package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/trendhive/storefront-backend/pkg/enums"
)

// User holds the minimal identity row the cart/order tables reference.
// Registration and credential handling live in the auth service.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string         `gorm:"column:email;not null;uniqueIndex"`
	Name      string         `gorm:"column:name;not null"`
	Role      enums.UserRole `gorm:"column:role;not null;default:'customer'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
