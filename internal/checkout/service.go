package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/internal/cart"
	"github.com/trendhive/storefront-backend/internal/orders"
	"github.com/trendhive/storefront-backend/pkg/config"
	"github.com/trendhive/storefront-backend/pkg/db"
	"github.com/trendhive/storefront-backend/pkg/db/models"
	"github.com/trendhive/storefront-backend/pkg/enums"
	pkgerrors "github.com/trendhive/storefront-backend/pkg/errors"
	"github.com/trendhive/storefront-backend/pkg/types"
)

// CODSentinel is stored as the payment intent id for cash-on-delivery orders.
// Together with the (user_id, payment_intent_id) index it gives COD checkouts
// the same replay semantics as card checkouts. The status flow releases the
// key again once the order reaches a terminal state.
const CODSentinel = orders.CODPaymentIntentID

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service converts a cart into a payment intent and then a durable order.
type Service interface {
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*PaymentIntent, error)
	CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*models.Order, error)
}

// CreateOrderInput is the client payload confirming a checkout.
type CreateOrderInput struct {
	PaymentMethod   enums.PaymentMethod
	PaymentIntentID string
	ShippingAddress types.Address
}

type service struct {
	tx      txRunner
	cart    cart.Repository
	orders  orders.Repository
	catalog productLoader
	stock   StockDecrementer
	gateway PaymentGateway
	policy  config.CheckoutConfig
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.Repository,
	ordersRepo orders.Repository,
	catalog productLoader,
	stock StockDecrementer,
	gateway PaymentGateway,
	policy config.CheckoutConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock decrementer required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	return &service{
		tx:      tx,
		cart:    cartRepo,
		orders:  ordersRepo,
		catalog: catalog,
		stock:   stock,
		gateway: gateway,
		policy:  policy,
	}, nil
}

// CreatePaymentIntent prices the current cart and asks the gateway for an
// intent. It never mutates the cart; an abandoned intent simply expires on
// the provider side and the user may call this again.
func (s *service) CreatePaymentIntent(ctx context.Context, userID uuid.UUID) (*PaymentIntent, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	items, err := s.cart.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty")
	}

	totals := computeTotals(items, s.policy)
	amountCents := totals.Total.Shift(2).Round(0).IntPart()

	intent, err := s.gateway.CreateIntent(ctx, amountCents, s.policy.Currency, intentIdempotencyKey(userID, items))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, "create payment intent")
	}
	return intent, nil
}

// CreateOrder runs the whole checkout in one transaction: replay lookup,
// empty-cart guard, snapshot, stock decrement, persist, clear cart. Replays
// with a known payment intent return the existing order untouched.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, input CreateOrderInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	intentKey, err := resolveIntentKey(input)
	if err != nil {
		return nil, err
	}
	if field := input.ShippingAddress.Validate(); field != "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("shipping address missing %s", field))
	}

	var result *models.Order
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		cartRepo := s.cart.WithTx(tx)

		// Replay check runs before the empty-cart guard: a retry after a
		// successful checkout sees an empty cart but must still get its order.
		existing, err := ordersRepo.FindByUserAndPaymentIntent(ctx, userID, intentKey)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay lookup")
		}

		items, err := cartRepo.ListByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "your cart is empty")
		}

		order, err := s.assembleOrder(ctx, tx, userID, intentKey, input, items)
		if err != nil {
			return err
		}

		if err := ordersRepo.Create(ctx, order); err != nil {
			return err
		}
		if err := cartRepo.ClearByUser(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		result = order
		return nil
	})
	if txErr != nil {
		// A concurrent checkout with the same intent won the insert race.
		// The unique index rolled this attempt back; return the winner.
		if db.IsUniqueViolation(txErr, "idx_orders_user_payment_intent") ||
			db.IsUniqueViolation(txErr, "") {
			existing, err := s.orders.FindByUserAndPaymentIntent(ctx, userID, intentKey)
			if err == nil {
				return existing, nil
			}
		}
		return nil, txErr
	}
	return result, nil
}

func (s *service) assembleOrder(
	ctx context.Context,
	tx *gorm.DB,
	userID uuid.UUID,
	intentKey string,
	input CreateOrderInput,
	items []models.CartItem,
) (*models.Order, error) {
	orderID := uuid.New()
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product, err := s.catalog.FindByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product no longer available").
					WithDetails(map[string]any{"productId": item.ProductID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		ok, err := s.stock.Decrement(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"productId": item.ProductID, "requested": item.Quantity})
		}
		orderItems = append(orderItems, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: item.ProductID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	totals := computeTotals(items, s.policy)
	orderNumber, err := GenerateOrderNumber(time.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	return &models.Order{
		ID:              orderID,
		OrderNumber:     orderNumber,
		UserID:          userID,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   input.PaymentMethod,
		PaymentIntentID: &intentKey,
		ShippingAddress: input.ShippingAddress,
		Subtotal:        totals.Subtotal,
		ShippingFee:     totals.ShippingFee,
		Tax:             totals.Tax,
		Total:           totals.Total,
		Items:           orderItems,
	}, nil
}

func resolveIntentKey(input CreateOrderInput) (string, error) {
	if !input.PaymentMethod.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	key := strings.TrimSpace(input.PaymentIntentID)
	if input.PaymentMethod == enums.PaymentMethodCOD {
		if key == "" {
			key = CODSentinel
		}
		return key, nil
	}
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	return key, nil
}

type orderTotals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

func computeTotals(items []models.CartItem, policy config.CheckoutConfig) orderTotals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	tax := subtotal.Mul(policy.TaxRate).Round(2)
	totals := orderTotals{
		Subtotal:    subtotal,
		ShippingFee: policy.ShippingFee,
		Tax:         tax,
	}
	totals.Total = subtotal.Add(policy.ShippingFee).Add(tax)
	return totals
}

// intentIdempotencyKey fingerprints the cart so provider-side retries of the
// same priced cart reuse one intent instead of minting duplicates.
func intentIdempotencyKey(userID uuid.UUID, items []models.CartItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s:%d:%s", item.ProductID, item.Quantity, item.Price.StringFixed(2)))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(userID.String() + "|" + strings.Join(lines, "|")))
	return "checkout_" + hex.EncodeToString(sum[:16])
}
