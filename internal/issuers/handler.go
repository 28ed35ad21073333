package issuers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes recognised issuer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an issuer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type addRequest struct {
	Issuer   string `json:"issuer"`
	Currency string `json:"currency"`
}

// Add recognises an issuer for a currency on behalf of the party in the path.
func (h *Handler) Add(c *fiber.Ctx) error {
	var req addRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Add(c.UserContext(), c.Params("party"), req.Issuer, req.Currency)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Activate switches the active issuer of a currency.
func (h *Handler) Activate(c *fiber.Ctx) error {
	res, err := h.service.Activate(c.UserContext(), c.Params("party"), c.Params("issuer"), c.Params("currency"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Deactivate turns off an issuer for a currency.
func (h *Handler) Deactivate(c *fiber.Ctx) error {
	res, err := h.service.Deactivate(c.UserContext(), c.Params("party"), c.Params("issuer"), c.Params("currency"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Activated returns the active issuer of a currency.
func (h *Handler) Activated(c *fiber.Ctx) error {
	res, err := h.service.Activated(c.UserContext(), c.Params("party"), c.Params("currency"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

func (h *Handler) List(c *fiber.Ctx) error {
	res, err := h.service.List(c.UserContext(), c.Params("party"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}
