package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trendhive/storefront-backend/api/routes"
	"github.com/trendhive/storefront-backend/internal/cart"
	"github.com/trendhive/storefront-backend/internal/checkout"
	"github.com/trendhive/storefront-backend/internal/orders"
	"github.com/trendhive/storefront-backend/internal/products"
	"github.com/trendhive/storefront-backend/pkg/config"
	"github.com/trendhive/storefront-backend/pkg/db"
	"github.com/trendhive/storefront-backend/pkg/logger"
	"github.com/trendhive/storefront-backend/pkg/metrics"
	"github.com/trendhive/storefront-backend/pkg/migrate"
	"github.com/trendhive/storefront-backend/pkg/redis"
	"github.com/trendhive/storefront-backend/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	productsRepo := products.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())

	cartService, err := cart.NewService(cartRepo, productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	gateway, err := checkout.NewStripeGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	stock, err := checkout.NewCatalogStock(productsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock decrementer", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(dbClient, cartRepo, ordersRepo, productsRepo, stock, gateway, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(registry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Metrics:     httpMetrics,
			Registry:    registry,
			CartService: cartService,
			Checkout:    checkoutService,
			Orders:      ordersService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server stopped")
	}
}
