package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/ledger"
)

var statusByError = []struct {
	err    error
	status int
}{
	{ledger.ErrNotFound, http.StatusNotFound},
	{ledger.ErrInvalidRequest, http.StatusBadRequest},
	{ledger.ErrUnacceptableCurrency, http.StatusBadRequest},
	{ledger.ErrCurrencyMismatch, http.StatusBadRequest},
	{ledger.ErrInsufficientFunds, http.StatusBadRequest},
	{ledger.ErrUnauthorizedSigner, http.StatusForbidden},
	{ledger.ErrUnrecognizedIssuer, http.StatusForbidden},
	{ledger.ErrIssuerNotActivated, http.StatusForbidden},
	{ledger.ErrContractViolation, http.StatusUnprocessableEntity},
	{ledger.ErrDuplicateState, http.StatusConflict},
	{ledger.ErrAlreadyActivated, http.StatusConflict},
	{ledger.ErrAlreadyDeactivated, http.StatusConflict},
	{ledger.ErrAlreadyVerified, http.StatusConflict},
	{ledger.ErrNotarizationConflict, http.StatusConflict},
	{ledger.ErrInputReserved, http.StatusConflict},
}

// StatusFor maps an error to an HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders errors as {"error", "code"} JSON.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
			"code":  ledger.Code(err),
		})
	}
}
