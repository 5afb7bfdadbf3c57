package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trendhive/storefront-backend/api/controllers"
	"github.com/trendhive/storefront-backend/api/middleware"
	"github.com/trendhive/storefront-backend/internal/cart"
	checkoutsvc "github.com/trendhive/storefront-backend/internal/checkout"
	"github.com/trendhive/storefront-backend/internal/orders"
	"github.com/trendhive/storefront-backend/pkg/config"
	"github.com/trendhive/storefront-backend/pkg/enums"
	"github.com/trendhive/storefront-backend/pkg/logger"
	"github.com/trendhive/storefront-backend/pkg/metrics"
	"github.com/trendhive/storefront-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface needs. Optional entries (metrics,
// redis) may be nil and the matching middleware degrades to a pass-through.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Metrics     *metrics.HTTPMetrics
	Registry    *prometheus.Registry
	CartService cart.Service
	Checkout    checkoutsvc.Service
	Orders      orders.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.Metrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    pingerOrNil(deps.Redis),
		}))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStoreOrNil(deps.Redis), logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.CartService, logg))
			r.Get("/count", controllers.CartCount(deps.CartService, logg))
			r.Get("/total", controllers.CartTotal(deps.CartService, logg))
			r.Post("/", controllers.CartAddItem(deps.CartService, logg))
			r.Put("/{itemId}", controllers.CartUpdateItem(deps.CartService, logg))
			r.Delete("/{itemId}", controllers.CartRemoveItem(deps.CartService, logg))
			r.Delete("/", controllers.CartClear(deps.CartService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/payment-intent", controllers.OrdersCreateIntent(deps.Checkout, logg))
			r.Post("/", controllers.OrdersCreate(deps.Checkout, logg))
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrdersGet(deps.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Get("/ping", controllers.AdminPing())

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrdersList(deps.Orders, logg))
			r.Put("/{orderId}/status", controllers.AdminOrderUpdateStatus(deps.Orders, logg))
		})
	})

	return r
}

// Typed nil interfaces would defeat the nil checks downstream, so wrap only
// when a client is actually present.
func pingerOrNil(client *redis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStoreOrNil(client *redis.Client) redis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
