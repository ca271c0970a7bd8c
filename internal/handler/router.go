package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/dealspot/dealspot-system/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the dealspot API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Get("/offers", h.ListOffers)
		r.Get("/offers/{offerID}", h.GetOffer)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/vendor", h.CreateVendor)
			r.Post("/offers", h.CreateOffer)

			r.Get("/user/redemptions", h.GetRedemptions)
			r.Post("/redemptions/{offerID}/claim", h.ClaimOffer)
			r.Patch("/redemptions/{redemptionID}/verify", h.VerifyRedemption)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
