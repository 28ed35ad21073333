package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/issuers"
)

// RegisterIssuerRoutes wires recognised issuer endpoints.
func RegisterIssuerRoutes(r fiber.Router, h *issuers.Handler) {
	r.Get("/issuers", h.List)
	r.Post("/issuers", h.Add)
	r.Get("/issuers/activated/:currency", h.Activated)
	r.Post("/issuers/:issuer/:currency/activate", h.Activate)
	r.Post("/issuers/:issuer/:currency/deactivate", h.Deactivate)
}
