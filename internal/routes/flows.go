package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/flow"
)

// RegisterFlowRoutes wires flow recovery and transaction lookup endpoints.
func RegisterFlowRoutes(r fiber.Router, h *flow.Handler) {
	r.Get("/flows", h.InFlight)
	r.Post("/flows/resume", h.Resume)
	r.Delete("/flows/:flowId", h.Cancel)
	r.Get("/transactions/:txId", h.Transaction)
}
