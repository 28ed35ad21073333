package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/money"
)

// Handler exposes HTTP endpoints for wallet funding.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Fund sends funds from the wallet in the path to a wallet of the activated issuer.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req FundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Fund(c.UserContext(), c.Params("party"), FundInput{
		WalletID:            c.Params("walletId"),
		Amount:              req.Amount,
		RecipientWalletID:   req.RecipientWalletID,
		RecipientWalletType: req.RecipientWalletType,
		ClientTxID:          req.ClientTxID,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result FundingResult) FundingResponse {
	balance := "0"
	if result.WalletBalance.Currency != "" {
		balance = result.WalletBalance.Decimal().StringFixed(money.Exponent(result.WalletBalance.Currency))
	}
	return FundingResponse{
		FlowID:        result.FlowID,
		TransactionID: result.TransactionID,
		Status:        result.Status,
		Issuer:        result.Issuer,
		WalletBalance: balance,
	}
}
