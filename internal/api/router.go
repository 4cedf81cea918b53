package api

import (
	"net/http"
	"time"

	"github.com/example/storefront-orders/internal/api/middleware"
	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/domain"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout time.Duration
}

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		// Gateways authenticate themselves with signatures
		r.Post("/payment/webhook/{gateway}", handlers.PaymentWebhook)
		r.Get("/payment/methods", handlers.PaymentMethods)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(jwtService))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", handlers.GetCart)
				r.Delete("/", handlers.ClearCart)
				r.Post("/items", handlers.AddToCart)
				r.Put("/items/{productID}", handlers.UpdateCartItem)
				r.Delete("/items/{productID}", handlers.RemoveFromCart)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", handlers.PlaceOrder)
				r.Get("/mine", handlers.GetMyOrders)
				r.Get("/{id}", handlers.GetOrder)
				r.Post("/{id}/payment", handlers.BeginPayment)
				r.Post("/{id}/payment/execute", handlers.ExecutePayment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))
				r.Get("/orders", handlers.GetAllOrders)
				r.Put("/orders/{id}/status", handlers.UpdateOrderStatus)
			})
		})
	})

	return r
}
