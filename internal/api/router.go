/**
 * @description
 * This file sets up the HTTP router for the settlement simulator. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware for logging, CORS and operator authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the dashboard.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the simulator router. Ops routes require an HS256 token signed with
// opsSecret; an empty secret leaves them open.
func NewRouter(h *Handlers, opsSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	h.upgrader = newUpgrader(allowedOrigins)

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Event streams stay open, so they sit outside the request timeout.
	r.Get("/events", h.StreamEventsHandler)
	r.Get("/events/ws", h.WebSocketEventsHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/transfers", h.SubmitTransferHandler)
		r.Get("/transfers/{txnRef}", h.GetTransferHandler)
		r.Get("/accounts/{accountID}", h.GetAccountHandler)
		r.Get("/users/{userID}/transactions", h.ListUserTransactionsHandler)
		r.Get("/banks", h.ListBanksHandler)
		r.Get("/banks/{bankID}", h.GetBankHandler)

		r.Route("/ops", func(r chi.Router) {
			r.Use(OpsAuthMiddleware(opsSecret))

			r.Put("/banks/{bankID}/status", h.SetBankStatusHandler)
			r.Post("/outages", h.TriggerOutageHandler)
			r.Post("/system-issues", h.TriggerSystemIssueHandler)
			r.Put("/config", h.UpdateConfigHandler)
			r.Get("/stats", h.StatsHandler)
			r.Get("/pending", h.PendingHandler)
		})
	})

	return r
}
