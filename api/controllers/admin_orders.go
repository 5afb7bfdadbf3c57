package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trendhive/storefront-backend/api/responses"
	"github.com/trendhive/storefront-backend/api/validators"
	orderssvc "github.com/trendhive/storefront-backend/internal/orders"
	"github.com/trendhive/storefront-backend/pkg/enums"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
	"github.com/trendhive/storefront-backend/pkg/logger"
)

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminOrdersList pages through every user's orders with optional status and
// user filters.
func AdminOrdersList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters orderssvc.AdminFilters

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("userId")); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user filter"))
				return
			}
			filters.UserID = &userID
		}

		list, err := svc.ListAll(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderListResponse(list))
	}
}

// AdminOrderUpdateStatus advances an order along the fulfillment lifecycle.
func AdminOrderUpdateStatus(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}
