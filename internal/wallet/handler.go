package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	WalletID string `json:"wallet_id"`
	Owner    string `json:"owner"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Status   string `json:"status"`
}

// Create issues a wallet from the party in the path.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Create(c.UserContext(), c.Params("party"), CreateInput{
		WalletID: req.WalletID,
		Owner:    req.Owner,
		Currency: req.Currency,
		Type:     req.Type,
		Status:   req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Verify marks a wallet issued by the party in the path as verified.
func (h *Handler) Verify(c *fiber.Ctx) error {
	res, err := h.service.Verify(c.UserContext(), c.Params("party"), c.Params("walletId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(res)
}

// Get returns the current version of a wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("party"), c.Params("walletId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(w)
}
