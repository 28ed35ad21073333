package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/identity"
)

// RegisterIdentityRoutes exposes the party directory.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/parties", h.List)
	r.Get("/parties/:name", h.Get)
}
