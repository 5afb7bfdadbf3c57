package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/pkg/db/models"
)

// Repository exposes catalog reads and the guarded stock decrement.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindActiveByID loads the product only when it is still purchasable.
func (r *Repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ? AND is_active = ?", id, true).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock subtracts qty from the product's stock. The update only
// applies when enough stock remains; callers must treat zero affected rows
// as insufficient stock.
func (r *Repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
