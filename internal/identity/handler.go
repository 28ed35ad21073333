package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the party directory.
type Handler struct {
	registry Registry
}

// NewHandler constructs a directory HTTP handler.
func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

type partyResponse struct {
	Name      string `json:"name"`
	PublicKey []byte `json:"public_key"`
}

// List returns every known party.
func (h *Handler) List(c *fiber.Ctx) error {
	parties, err := h.registry.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]partyResponse, 0, len(parties))
	for _, p := range parties {
		out = append(out, partyResponse{Name: p.Name, PublicKey: p.PublicKey})
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Get resolves a single party by name.
func (h *Handler) Get(c *fiber.Ctx) error {
	party, err := h.registry.Resolve(c.UserContext(), c.Params("name"))
	if err != nil {
		if errors.Is(err, ErrUnknownParty) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(partyResponse{Name: party.Name, PublicKey: party.PublicKey})
}
