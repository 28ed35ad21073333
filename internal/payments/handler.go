package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type issueRequest struct {
	WalletID   string `json:"wallet_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	ClientTxID string `json:"client_tx_id"`
}

type transferRequest struct {
	SenderWalletID    string `json:"sender_wallet_id"`
	RecipientWalletID string `json:"recipient_wallet_id"`
	Recipient         string `json:"recipient"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Type              string `json:"type"`
	ClientTxID        string `json:"client_tx_id"`
}

// Issue credits a gateway wallet from the issuing party in the path.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Issue(c.UserContext(), c.Params("party"), IssueInput{
		WalletID:   req.WalletID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		ClientTxID: req.ClientTxID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Transfer moves funds out of a wallet owned by the party in the path.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), c.Params("party"), TransferInput{
		SenderWalletID:    req.SenderWalletID,
		RecipientWalletID: req.RecipientWalletID,
		Recipient:         req.Recipient,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Type:              req.Type,
		ClientTxID:        req.ClientTxID,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(res)
}
