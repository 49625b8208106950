/**
 * @description
 * This file sets up the HTTP router using the go-chi/chi router. It defines
 * the API routes, applies middleware for logging, CORS, and authentication,
 * and maps the routes to their corresponding handler functions. Webhook
 * routes sit outside the auth group: they authenticate by provider signature,
 * not bearer token.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers all routes.
func NewRouter(h *Handler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.handleRegister)
			r.Post("/login", h.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(jwtSecret))
				r.Get("/me", h.handleMe)
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			// Public catalog and signature-authenticated webhooks.
			r.Get("/plans", h.handleListPlans)
			r.Post("/webhook", h.handleStripeWebhook)
			r.Post("/paypal/webhook", h.handlePayPalWebhook)

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(jwtSecret))

				r.Get("/status", h.handleGetStatus)
				r.Get("/usage", h.handleGetUsage)
				r.Post("/checkout-session", h.handleCreateCheckoutSession)
				r.Post("/payment-intent", h.handleConfirmPayment)
				r.Post("/paypal", h.handleCreatePayPalSubscription)
				r.Post("/upgrade", h.handleUpgrade)
				r.Post("/downgrade", h.handleDowngrade)
				r.Post("/cancel", h.handleCancel)
				r.Post("/use-credit", h.handleUseCredit)
				r.Post("/billing-portal", h.handleBillingPortal)
				r.Get("/logs", h.handleListLogs)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Post("/", h.handleCreateVideo)
			r.Get("/", h.handleListVideos)
			r.Get("/{id}", h.handleGetVideo)
			r.Delete("/{id}", h.handleDeleteVideo)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Get("/", h.handleListPayments)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))
			r.Use(AdminOnly)

			r.Get("/stats", h.handleAdminStats)
			r.Get("/subscriptions", h.handleAdminListSubscriptions)
			r.Post("/payments/{id}/retry", h.handleAdminRetryPayment)
			r.Post("/videos/{id}/status", h.handleAdminUpdateVideoStatus)
		})

		r.Post("/contact", h.handleContact)
	})

	return r
}
