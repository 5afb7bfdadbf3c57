package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/pkg/db/models"
	"github.com/trendhive/storefront-backend/pkg/enums"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
	"github.com/trendhive/storefront-backend/pkg/pagination"
)

// CODPaymentIntentID is the stand-in intent id for cash-on-delivery orders.
// It occupies the (user_id, payment_intent_id) slot while the order is open
// and is released when the order reaches a terminal status.
const CODPaymentIntentID = "cod_success"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order reads and the admin status transition.
type Service interface {
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	GetByIDForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ListAll(ctx context.Context, params pagination.Params, filters AdminFilters) (*OrderList, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds an orders service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	list, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) GetByIDForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) ListAll(ctx context.Context, params pagination.Params, filters AdminFilters) (*OrderList, error) {
	list, err := s.repo.ListAll(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list all orders")
	}
	return list, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == status {
			result = order
			return nil
		}
		if !canTransition(order.Status, status) {
			return pkgerrors.New(
				pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot transition order from %s to %s", order.Status, status),
			).WithDetails(map[string]string{"from": order.Status.String(), "to": status.String()})
		}

		now := time.Now().UTC()
		updates := map[string]any{}
		switch status {
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
			order.DeliveredAt = &now
		case enums.OrderStatusCancelled:
			updates["cancelled_at"] = now
			order.CancelledAt = &now
		}
		if status.IsTerminal() && order.PaymentIntentID != nil && *order.PaymentIntentID == CODPaymentIntentID {
			// A terminal COD order frees the (user_id, payment_intent_id)
			// slot so the user can place their next cash-on-delivery order.
			updates["payment_intent_id"] = nil
			order.PaymentIntentID = nil
		}

		if err := repo.UpdateStatus(ctx, order.ID, status, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = status
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// canTransition encodes the forward-only lifecycle. Cancellation is reachable
// from any non-terminal state; delivered and cancelled accept nothing.
func canTransition(from, to enums.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == enums.OrderStatusCancelled {
		return true
	}
	switch from {
	case enums.OrderStatusPending:
		return to == enums.OrderStatusProcessing
	case enums.OrderStatusProcessing:
		return to == enums.OrderStatusShipped
	case enums.OrderStatusShipped:
		return to == enums.OrderStatusDelivered
	default:
		return false
	}
}
