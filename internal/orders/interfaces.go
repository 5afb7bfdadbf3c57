package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/pkg/db/models"
	"github.com/trendhive/storefront-backend/pkg/enums"
	"github.com/trendhive/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByUserAndPaymentIntent(ctx context.Context, userID uuid.UUID, paymentIntentID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, params pagination.Params, filters AdminFilters) (*OrderList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, updates map[string]any) error
}

// AdminFilters narrows the back-office order listing.
type AdminFilters struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
}

// OrderList is one page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}
