package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trendhive/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for cart rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, item *models.CartItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartItem, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	TotalByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	Delete(ctx context.Context, id uuid.UUID) error
	ClearByUser(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert inserts the cart row or, when the (user, product) pair already
// exists, increments the stored quantity atomically.
func (r *repository) Upsert(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity": gorm.Expr("cart_items.quantity + excluded.quantity"),
			}),
		}).
		Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) TotalByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(price * quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", id).
		UpdateColumn("quantity", quantity).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CartItem{}, "id = ?", id).Error
}

func (r *repository) ClearByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CartItem{}, "user_id = ?", userID).Error
}
