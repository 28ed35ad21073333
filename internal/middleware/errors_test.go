package middleware

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
)

func TestErrorHandlerMapsLedgerErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wallet w1: %w", ledger.ErrNotFound), fiber.StatusNotFound, "not_found"},
		{ledger.Violation("ceiling", "too much"), fiber.StatusUnprocessableEntity, "contract_violation"},
		{ledger.SignerViolation("signers", "missing"), fiber.StatusForbidden, "unauthorized_signer"},
		{&ledger.UnacceptableCurrencyError{Requested: "EUR", Wallet: "USD"}, fiber.StatusBadRequest, "unacceptable_currency"},
		{fmt.Errorf("notarize: %w", ledger.ErrNotarizationConflict), fiber.StatusConflict, "notarization_conflict"},
		{fiber.NewError(fiber.StatusTooManyRequests, "slow down"), fiber.StatusTooManyRequests, "internal"},
		{fmt.Errorf("boom"), fiber.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
		err := tc.err
		app.Get("/", func(c *fiber.Ctx) error { return err })

		resp, testErr := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if testErr != nil {
			t.Fatalf("app.Test: %v", testErr)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.status, resp.StatusCode)
		}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if body.Code != tc.code {
			t.Fatalf("%v: expected code %s got %s", tc.err, tc.code, body.Code)
		}
	}
}
