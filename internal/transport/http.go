package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/auth"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
	handlerHttp "github.com/vasiliy-maslov/checkout-service/internal/handler/http"
	"github.com/vasiliy-maslov/checkout-service/internal/metrics"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Carts    cart.Service
	Orders   order.Service
	Checkout handlerHttp.OrderCreator
	Verifier auth.Verifier
	AdminIDs []int64
	DB       Pinger
	Metrics  *metrics.ServerMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/health", health(d.DB))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	cartHandler := handlerHttp.NewCartHandler(d.Carts)
	orderHandler := handlerHttp.NewOrderHandler(d.Orders, d.Checkout)
	admin := auth.RequireAdmin(d.AdminIDs, handlerHttp.WriteError)

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware(d.Verifier, handlerHttp.WriteError))
		cartHandler.RegisterRoutes(api)
		orderHandler.RegisterRoutes(api, admin)
	})

	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("transport: health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
