package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	checkoutsvc "github.com/trendhive/storefront-backend/internal/checkout"
	internalorders "github.com/trendhive/storefront-backend/internal/orders"
	"github.com/trendhive/storefront-backend/pkg/db/models"
	"github.com/trendhive/storefront-backend/pkg/enums"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
	"github.com/trendhive/storefront-backend/pkg/pagination"
	"github.com/trendhive/storefront-backend/pkg/types"
)

type stubCheckoutService struct {
	intentFn func(ctx context.Context, userID uuid.UUID) (*checkoutsvc.PaymentIntent, error)
	orderFn  func(ctx context.Context, userID uuid.UUID, input checkoutsvc.CreateOrderInput) (*models.Order, error)
}

func (s stubCheckoutService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*checkoutsvc.PaymentIntent, error) {
	if s.intentFn != nil {
		return s.intentFn(ctx, userID)
	}
	return &checkoutsvc.PaymentIntent{}, nil
}

func (s stubCheckoutService) CreateOrder(ctx context.Context, userID uuid.UUID, input checkoutsvc.CreateOrderInput) (*models.Order, error) {
	if s.orderFn != nil {
		return s.orderFn(ctx, userID, input)
	}
	return &models.Order{}, nil
}

type stubOrdersService struct {
	listFn   func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	getFn    func(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	allFn    func(ctx context.Context, params pagination.Params, filters internalorders.AdminFilters) (*internalorders.OrderList, error)
	updateFn func(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
}

func (s stubOrdersService) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, params)
	}
	return &internalorders.OrderList{}, nil
}

func (s stubOrdersService) GetByIDForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, orderID)
	}
	return &models.Order{}, nil
}

func (s stubOrdersService) ListAll(ctx context.Context, params pagination.Params, filters internalorders.AdminFilters) (*internalorders.OrderList, error) {
	if s.allFn != nil {
		return s.allFn(ctx, params, filters)
	}
	return &internalorders.OrderList{}, nil
}

func (s stubOrdersService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, orderID, status)
	}
	return &models.Order{}, nil
}

func jsonBody(payload string) io.Reader {
	return strings.NewReader(payload)
}

func withOrderID(req *http.Request, orderID uuid.UUID) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func testAddress() types.Address {
	return types.Address{
		Line1:      "123 Harbor Way",
		City:       "Oakland",
		State:      "CA",
		PostalCode: "94607",
		Country:    "US",
	}
}

func TestOrdersCreateIntent(t *testing.T) {
	userID := uuid.New()
	svc := stubCheckoutService{
		intentFn: func(ctx context.Context, gotUser uuid.UUID) (*checkoutsvc.PaymentIntent, error) {
			if gotUser != userID {
				t.Fatalf("unexpected user %s", gotUser)
			}
			return &checkoutsvc.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/orders/payment-intent", "", userID)
	resp := httptest.NewRecorder()
	OrdersCreateIntent(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}

	var envelope struct {
		Data checkoutsvc.PaymentIntent `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != "pi_123" || envelope.Data.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent %+v", envelope.Data)
	}
}

func TestOrdersCreateIntentEmptyCart(t *testing.T) {
	svc := stubCheckoutService{
		intentFn: func(ctx context.Context, _ uuid.UUID) (*checkoutsvc.PaymentIntent, error) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty")
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/orders/payment-intent", "", uuid.New())
	resp := httptest.NewRecorder()
	OrdersCreateIntent(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var envelope struct {
		Error types.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Message != "your cart is empty" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
}

func TestOrdersCreate(t *testing.T) {
	userID := uuid.New()
	svc := stubCheckoutService{
		orderFn: func(ctx context.Context, gotUser uuid.UUID, input checkoutsvc.CreateOrderInput) (*models.Order, error) {
			if gotUser != userID {
				t.Fatalf("unexpected user %s", gotUser)
			}
			if input.PaymentMethod != enums.PaymentMethodCard {
				t.Fatalf("unexpected method %s", input.PaymentMethod)
			}
			if input.PaymentIntentID != "pi_123" {
				t.Fatalf("unexpected intent %s", input.PaymentIntentID)
			}
			return &models.Order{
				ID:          uuid.New(),
				OrderNumber: "ORD-20260110-7XK2QF",
				Status:      enums.OrderStatusPending,
				Total:       decimal.RequireFromString("38.00"),
			}, nil
		},
	}

	body, _ := json.Marshal(map[string]any{
		"paymentMethod":   "card",
		"paymentIntentId": "pi_123",
		"shippingAddress": testAddress(),
	})
	req := authedRequest(http.MethodPost, "/api/v1/orders", string(body), userID)
	resp := httptest.NewRecorder()
	OrdersCreate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderNumber != "ORD-20260110-7XK2QF" {
		t.Fatalf("unexpected order number %s", envelope.Data.OrderNumber)
	}
}

func TestOrdersCreateRejectsUnknownMethod(t *testing.T) {
	called := false
	svc := stubCheckoutService{
		orderFn: func(ctx context.Context, _ uuid.UUID, _ checkoutsvc.CreateOrderInput) (*models.Order, error) {
			called = true
			return nil, nil
		},
	}

	body, _ := json.Marshal(map[string]any{
		"paymentMethod":   "wire",
		"shippingAddress": testAddress(),
	})
	req := authedRequest(http.MethodPost, "/api/v1/orders", string(body), uuid.New())
	resp := httptest.NewRecorder()
	OrdersCreate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("service should not run for unknown payment method")
	}
}

func TestOrdersList(t *testing.T) {
	userID := uuid.New()
	svc := stubOrdersService{
		listFn: func(ctx context.Context, gotUser uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
			if gotUser != userID {
				t.Fatalf("unexpected user %s", gotUser)
			}
			if params.Limit != 5 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return &internalorders.OrderList{
				Orders:     []models.Order{{ID: uuid.New(), OrderNumber: "ORD-20260110-AAAAAA"}},
				NextCursor: "next-token",
			}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/orders?limit=5", "", userID)
	resp := httptest.NewRecorder()
	OrdersList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data orderListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Orders) != 1 || envelope.Data.NextCursor != "next-token" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestOrdersGetForbidden(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrdersService{
		getFn: func(ctx context.Context, _, _ uuid.UUID) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		},
	}

	req := withOrderID(authedRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", uuid.New()), orderID)
	resp := httptest.NewRecorder()
	OrdersGet(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAdminOrdersListStatusFilter(t *testing.T) {
	svc := stubOrdersService{
		allFn: func(ctx context.Context, params pagination.Params, filters internalorders.AdminFilters) (*internalorders.OrderList, error) {
			if filters.Status == nil || *filters.Status != enums.OrderStatusShipped {
				t.Fatalf("expected shipped filter got %v", filters.Status)
			}
			return &internalorders.OrderList{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=shipped", nil)
	resp := httptest.NewRecorder()
	AdminOrdersList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminOrdersListRejectsBadStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=bogus", nil)
	resp := httptest.NewRecorder()
	AdminOrdersList(stubOrdersService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminOrderUpdateStatus(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrdersService{
		updateFn: func(ctx context.Context, gotID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
			if gotID != orderID {
				t.Fatalf("unexpected id %s", gotID)
			}
			if status != enums.OrderStatusProcessing {
				t.Fatalf("unexpected status %s", status)
			}
			return &models.Order{ID: gotID, Status: status}, nil
		},
	}

	req := withOrderID(httptest.NewRequest(http.MethodPut, "/api/admin/v1/orders/"+orderID.String()+"/status",
		jsonBody(`{"status":"processing"}`)), orderID)
	resp := httptest.NewRecorder()
	AdminOrderUpdateStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminOrderUpdateStatusConflict(t *testing.T) {
	orderID := uuid.New()
	svc := stubOrdersService{
		updateFn: func(ctx context.Context, _ uuid.UUID, _ enums.OrderStatus) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already delivered")
		},
	}

	req := withOrderID(httptest.NewRequest(http.MethodPut, "/api/admin/v1/orders/"+orderID.String()+"/status",
		jsonBody(`{"status":"pending"}`)), orderID)
	resp := httptest.NewRecorder()
	AdminOrderUpdateStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
