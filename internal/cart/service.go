package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/pkg/db/models"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
)

type productCatalog interface {
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service defines the per-user cart operations.
type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	GetCart(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	GetCount(ctx context.Context, userID uuid.UUID) (int64, error)
	GetTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo    Repository
	catalog productCatalog
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, catalog productCatalog) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	return &service{repo: repo, catalog: catalog}, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	product, err := s.catalog.FindActiveByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	item := &models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     product.Price,
	}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
	}

	// The upsert may have incremented an existing row rather than inserting;
	// reload through the user listing so callers always see the stored state.
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart item missing after upsert")
}

func (s *service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}
	item.Quantity = quantity
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, item.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.ClearByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	return items, nil
}

func (s *service) GetCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cart")
	}
	return count, nil
}

func (s *service) GetTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	total, err := s.repo.TotalByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "total cart")
	}
	return total, nil
}

func (s *service) ownedItem(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart item id required")
	}

	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cart item does not belong to user")
	}
	return item, nil
}
