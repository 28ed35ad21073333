package flow

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes flow inspection and recovery endpoints for hosted parties.
type Handler struct {
	directory Directory
}

// NewHandler constructs a flow handler.
func NewHandler(directory Directory) *Handler {
	return &Handler{directory: directory}
}

// InFlight lists the suspended or running flows of the party in the path.
func (h *Handler) InFlight(c *fiber.Ctx) error {
	s, err := h.directory.Lookup(c.Params("party"))
	if err != nil {
		return err
	}
	cps, err := s.InFlight(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(cps)
}

// Cancel aborts one flow.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	s, err := h.directory.Lookup(c.Params("party"))
	if err != nil {
		return err
	}
	if err := s.Cancel(c.UserContext(), c.Params("flowId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Resume drives suspended flows of the party to completion or abort.
func (h *Handler) Resume(c *fiber.Ctx) error {
	s, err := h.directory.Lookup(c.Params("party"))
	if err != nil {
		return err
	}
	n, err := s.Resume(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"committed": n})
}

// Transaction returns a committed transition recorded by the party.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	s, err := h.directory.Lookup(c.Params("party"))
	if err != nil {
		return err
	}
	stx, err := s.Transaction(c.UserContext(), c.Params("txId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(stx)
}
