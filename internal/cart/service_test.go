package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/pkg/db/models"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
)

type stubCartRepo struct {
	items map[uuid.UUID]*models.CartItem

	upsertErr error
	lastClear uuid.UUID
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{items: make(map[uuid.UUID]*models.CartItem)}
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubCartRepo) Upsert(ctx context.Context, item *models.CartItem) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, existing := range s.items {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			return nil
		}
	}
	clone := *item
	s.items[clone.ID] = &clone
	return nil
}

func (s *stubCartRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.CartItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *item
	return &clone, nil
}

func (s *stubCartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var out []models.CartItem
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *stubCartRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	for _, item := range s.items {
		if item.UserID == userID {
			count += int64(item.Quantity)
		}
	}
	return count, nil
}

func (s *stubCartRepo) TotalByUser(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range s.items {
		if item.UserID == userID {
			total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	return total, nil
}

func (s *stubCartRepo) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	item, ok := s.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	item.Quantity = quantity
	return nil
}

func (s *stubCartRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(s.items, id)
	return nil
}

func (s *stubCartRepo) ClearByUser(ctx context.Context, userID uuid.UUID) error {
	s.lastClear = userID
	for id, item := range s.items {
		if item.UserID == userID {
			delete(s.items, id)
		}
	}
	return nil
}

type stubCatalog struct {
	products map[uuid.UUID]*models.Product
	findErr  error
}

func (s *stubCatalog) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	product, ok := s.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return product, nil
}

func newTestCartService(t *testing.T) (Service, *stubCartRepo, *stubCatalog) {
	t.Helper()
	repo := newStubCartRepo()
	catalog := &stubCatalog{products: make(map[uuid.UUID]*models.Product)}
	svc, err := NewService(repo, catalog)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, catalog
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %v", err)
	}
	if appErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, appErr.Code())
	}
}

func TestAddItemMapsWrappedNotFound(t *testing.T) {
	svc, _, catalog := newTestCartService(t)
	catalog.findErr = fmt.Errorf("load product: %w", gorm.ErrRecordNotFound)

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 1)
	expectCode(t, err, pkgerrors.CodeNotFound)
}

func TestAddItemSnapshotsCatalogPrice(t *testing.T) {
	svc, _, catalog := newTestCartService(t)
	userID := uuid.New()
	productID := uuid.New()
	catalog.products[productID] = &models.Product{
		ID:    productID,
		Name:  "Widget",
		Price: decimal.RequireFromString("12.50"),
		Stock: 10,
	}

	item, err := svc.AddItem(context.Background(), userID, productID, 2)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !item.Price.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("price = %s, want 12.50", item.Price)
	}
	if item.Quantity != 2 {
		t.Errorf("quantity = %d, want 2", item.Quantity)
	}
}

func TestAddItemAccumulatesQuantity(t *testing.T) {
	svc, _, catalog := newTestCartService(t)
	userID := uuid.New()
	productID := uuid.New()
	catalog.products[productID] = &models.Product{ID: productID, Price: decimal.RequireFromString("10.00")}

	if _, err := svc.AddItem(context.Background(), userID, productID, 2); err != nil {
		t.Fatalf("first AddItem: %v", err)
	}
	item, err := svc.AddItem(context.Background(), userID, productID, 1)
	if err != nil {
		t.Fatalf("second AddItem: %v", err)
	}
	if item.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", item.Quantity)
	}

	items, err := svc.GetCart(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("cart rows = %d, want 1", len(items))
	}

	total, err := svc.GetTotal(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetTotal: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("total = %s, want 30.00", total)
	}
}

func TestAddItemRejectsUnknownProduct(t *testing.T) {
	svc, _, _ := newTestCartService(t)

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 1)
	expectCode(t, err, pkgerrors.CodeNotFound)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := newTestCartService(t)

	_, err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), 0)
	expectCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateQuantityRejectsZero(t *testing.T) {
	svc, repo, _ := newTestCartService(t)
	userID := uuid.New()
	item := &models.CartItem{ID: uuid.New(), UserID: userID, ProductID: uuid.New(), Quantity: 1, Price: decimal.NewFromInt(1)}
	repo.items[item.ID] = item

	_, err := svc.UpdateQuantity(context.Background(), userID, item.ID, 0)
	expectCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateQuantityEnforcesOwnership(t *testing.T) {
	svc, repo, _ := newTestCartService(t)
	owner := uuid.New()
	item := &models.CartItem{ID: uuid.New(), UserID: owner, ProductID: uuid.New(), Quantity: 1, Price: decimal.NewFromInt(1)}
	repo.items[item.ID] = item

	_, err := svc.UpdateQuantity(context.Background(), uuid.New(), item.ID, 2)
	expectCode(t, err, pkgerrors.CodeForbidden)

	updated, err := svc.UpdateQuantity(context.Background(), owner, item.ID, 4)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if updated.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", updated.Quantity)
	}
}

func TestRemoveItemUnknownIDReturnsNotFound(t *testing.T) {
	svc, _, _ := newTestCartService(t)

	err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	expectCode(t, err, pkgerrors.CodeNotFound)
}

func TestRemoveItemDeletesOwnedRow(t *testing.T) {
	svc, repo, _ := newTestCartService(t)
	userID := uuid.New()
	item := &models.CartItem{ID: uuid.New(), UserID: userID, ProductID: uuid.New(), Quantity: 1, Price: decimal.NewFromInt(1)}
	repo.items[item.ID] = item

	if err := svc.RemoveItem(context.Background(), userID, item.ID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if _, ok := repo.items[item.ID]; ok {
		t.Error("item still present after removal")
	}
}
