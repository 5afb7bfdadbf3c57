package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trendhive/storefront-backend/internal/products"
	stripeclient "github.com/trendhive/storefront-backend/pkg/stripe"
)

// PaymentIntent is the gateway handle returned to the client for confirmation.
type PaymentIntent struct {
	ID           string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// PaymentGateway abstracts the external payment provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, idempotencyKey string) (*PaymentIntent, error)
}

// StockDecrementer subtracts purchased quantities inside the checkout transaction.
type StockDecrementer interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
}

type stripeGateway struct {
	client *stripeclient.Client
}

// NewStripeGateway adapts the Stripe client to the PaymentGateway interface.
func NewStripeGateway(client *stripeclient.Client) (PaymentGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &stripeGateway{client: client}, nil
}

func (g *stripeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string, idempotencyKey string) (*PaymentIntent, error) {
	intent, err := g.client.CreateIntent(ctx, amountCents, currency, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

type catalogStock struct {
	repo *products.Repository
}

// NewCatalogStock adapts the products repository for transactional stock decrements.
func NewCatalogStock(repo *products.Repository) (StockDecrementer, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &catalogStock{repo: repo}, nil
}

func (c *catalogStock) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	return c.repo.WithTx(tx).DecrementStock(ctx, productID, qty)
}
