package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trendhive/storefront-backend/api/responses"
	"github.com/trendhive/storefront-backend/api/validators"
	checkoutsvc "github.com/trendhive/storefront-backend/internal/checkout"
	orderssvc "github.com/trendhive/storefront-backend/internal/orders"
	"github.com/trendhive/storefront-backend/pkg/db/models"
	"github.com/trendhive/storefront-backend/pkg/enums"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
	"github.com/trendhive/storefront-backend/pkg/logger"
	"github.com/trendhive/storefront-backend/pkg/pagination"
	"github.com/trendhive/storefront-backend/pkg/types"
)

type createOrderRequest struct {
	PaymentMethod   string        `json:"paymentMethod" validate:"required"`
	PaymentIntentID string        `json:"paymentIntentId"`
	ShippingAddress types.Address `json:"shippingAddress" validate:"required"`
}

type orderItemResponse struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Status          string              `json:"status"`
	PaymentMethod   string              `json:"paymentMethod"`
	ShippingAddress types.Address       `json:"shippingAddress"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	ShippingFee     decimal.Decimal     `json:"shippingFee"`
	Tax             decimal.Decimal     `json:"tax"`
	Total           decimal.Decimal     `json:"total"`
	Items           []orderItemResponse `json:"items"`
	DeliveredAt     *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time          `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		ShippingAddress: order.ShippingAddress,
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		Tax:             order.Tax,
		Total:           order.Total,
		Items:           items,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
	}
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func newOrderListResponse(list *orderssvc.OrderList) orderListResponse {
	out := orderListResponse{
		Orders:     make([]orderResponse, 0, len(list.Orders)),
		NextCursor: list.NextCursor,
	}
	for i := range list.Orders {
		out.Orders = append(out.Orders, newOrderResponse(&list.Orders[i]))
	}
	return out
}

// OrdersCreateIntent prices the caller's cart and opens a payment intent with
// the gateway. The cart is left untouched.
func OrdersCreateIntent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreatePaymentIntent(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// OrdersCreate turns the caller's cart into an order. Replaying the same
// payment intent returns the order created the first time.
func OrdersCreate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		order, err := svc.CreateOrder(r.Context(), userID, checkoutsvc.CreateOrderInput{
			PaymentMethod:   method,
			PaymentIntentID: strings.TrimSpace(payload.PaymentIntentID),
			ShippingAddress: payload.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// OrdersList pages through the caller's order history, newest first.
func OrdersList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderListResponse(list))
	}
}

// OrdersGet fetches one of the caller's orders with its line items.
func OrdersGet(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		order, err := svc.GetByIDForUser(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
