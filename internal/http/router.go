// Package http is the local gateway the UI shell talks to. It exposes the data
// layer as JSON over chi routes.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterConfig carries no request timeout: each handler bounds its own calls,
// and the retrying ones need longer than a plain read.
type RouterConfig struct {
	MaxRequestBodySize int64
	AllowedOrigins     []string
	// Verifier is optional; without it only the device session identifies the user.
	Verifier TokenVerifier
}

type Handlers struct {
	Catalog  *CatalogHandler
	Cart     *CartHandler
	Orders   *OrdersHandler
	Account  *AccountHandler
	Checkout *CheckoutHandler
	Auth     *AuthHandler
}

func NewRouter(cfg RouterConfig, h Handlers, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}
	r.Use(middleware.Compress(5))
	r.Use(AuthMiddleware(cfg.Verifier))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Catalog.ListProducts)
			r.Get("/{product_id}", h.Catalog.GetProduct)
		})
		r.Get("/banners", h.Catalog.ListBanners)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{product_id}", h.Cart.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.Orders.ListOrders)
			r.Get("/{order_id}", h.Orders.GetOrder)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/", h.Account.GetProfile)
			r.Put("/", h.Account.Rename)
			r.Get("/favorites", h.Account.ListFavorites)
			r.Post("/favorites/{product_id}", h.Account.ToggleFavorite)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.Checkout.Begin)
			r.Get("/shipping", h.Checkout.Shipping)
			r.Post("/{checkout_id}/complete", h.Checkout.Complete)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", h.Auth.SignIn)
			r.Post("/signup", h.Auth.SignUp)
			r.Post("/password-reset", h.Auth.PasswordReset)
			r.Post("/signout", h.Auth.SignOut)
		})
	})

	return otelhttp.NewHandler(r, "storefront-gateway")
}
