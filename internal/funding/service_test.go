package funding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/middleware"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

var (
	issuerParty  = identity.DeriveKeyPair("issuer", "funding-test").Party()
	gatewayParty = identity.DeriveKeyPair("gateway-a", "funding-test").Party()
	testNow      = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
)

func walletOf(id string, owner identity.Party, kind state.WalletType, minor int64) state.Wallet {
	return state.NewWallet(state.WalletSpec{
		WalletID: id,
		Owner:    owner,
		Currency: "USD",
		Type:     kind,
	}, issuerParty, testNow).WithBalance(money.New(minor, "USD"), testNow)
}

type fakeFlows struct {
	wallets map[string]state.Wallet
	funded  []flow.FundWalletRequest
	fundErr error
}

func (f *fakeFlows) Wallet(_ context.Context, walletID string) (state.Wallet, error) {
	w, ok := f.wallets[walletID]
	if !ok {
		return state.Wallet{}, fmt.Errorf("%w: wallet %s", ledger.ErrNotFound, walletID)
	}
	return w, nil
}

func (f *fakeFlows) FundWallet(_ context.Context, req flow.FundWalletRequest) (flow.Committed, error) {
	if f.fundErr != nil {
		return flow.Committed{}, f.fundErr
	}
	f.funded = append(f.funded, req)
	sender := f.wallets[req.SenderWalletID]
	left, _ := sender.Balance.Minus(req.Amount)
	return flow.Committed{
		FlowID: "fund-1",
		Tx: ledger.SignedTransition{
			ID: "tx-fund",
			Tx: ledger.Transition{Outputs: []state.State{
				sender.WithBalance(left, testNow),
				walletOf("issuer-usd", issuerParty, state.WalletIssuerOwned, req.Amount.Quantity),
			}},
		},
	}, nil
}

func newFlows() *fakeFlows {
	return &fakeFlows{wallets: map[string]state.Wallet{
		"gw-a-usd": walletOf("gw-a-usd", gatewayParty, state.WalletGatewayOwned, 100_000),
	}}
}

func lookupOf(flows *fakeFlows) Lookup {
	return func(party string) (Flows, error) {
		if party != "gateway-a" {
			return nil, fmt.Errorf("%w: party %s", ledger.ErrNotFound, party)
		}
		return flows, nil
	}
}

func TestFundUsesWalletCurrency(t *testing.T) {
	flows := newFlows()
	svc := NewService(lookupOf(flows))

	res, err := svc.Fund(context.Background(), "gateway-a", FundInput{WalletID: "gw-a-usd", Amount: "250"})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if len(flows.funded) != 1 || flows.funded[0].Amount != money.New(25_000, "USD") {
		t.Fatalf("unexpected fund request %+v", flows.funded)
	}
	if res.Status != StatusCommitted || res.Issuer != "issuer" || res.WalletBalance.Quantity != 75_000 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFundRejectsInvalidAmount(t *testing.T) {
	flows := newFlows()
	svc := NewService(lookupOf(flows))

	if _, err := svc.Fund(context.Background(), "gateway-a", FundInput{WalletID: "gw-a-usd", Amount: "-1"}); !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := svc.Fund(context.Background(), "gateway-a", FundInput{WalletID: "missing", Amount: "1"}); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(flows.funded) != 0 {
		t.Fatalf("no flow should run")
	}
}

func TestFundPassesRecipientWallet(t *testing.T) {
	flows := newFlows()
	svc := NewService(lookupOf(flows))

	_, err := svc.Fund(context.Background(), "gateway-a", FundInput{
		WalletID:            "gw-a-usd",
		Amount:              "5",
		RecipientWalletID:   " lp-usd ",
		RecipientWalletType: "liquidity_provider_owned",
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	got := flows.funded[0]
	if got.RecipientWalletID != "lp-usd" || got.RecipientWalletType != state.WalletLiquidityProviderOwned {
		t.Fatalf("unexpected recipient %+v", got)
	}

	_, err = svc.Fund(context.Background(), "gateway-a", FundInput{WalletID: "gw-a-usd", Amount: "5", RecipientWalletType: "vault"})
	if !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if len(flows.funded) != 1 {
		t.Fatalf("rejected funding should not run a flow")
	}
}

func TestFundHandler(t *testing.T) {
	flows := newFlows()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Post("/parties/:party/wallets/:walletId/fund", NewHandler(NewService(lookupOf(flows))).Fund)

	body, _ := json.Marshal(FundRequest{Amount: "10.25"})
	req := httptest.NewRequest(fiber.MethodPost, "/parties/gateway-a/wallets/gw-a-usd/fund", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out FundingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.WalletBalance != "989.75" || out.TransactionID != "tx-fund" {
		t.Fatalf("unexpected response %+v", out)
	}

	flows.fundErr = fmt.Errorf("fund: %w", ledger.ErrIssuerNotActivated)
	req = httptest.NewRequest(fiber.MethodPost, "/parties/gateway-a/wallets/gw-a-usd/fund", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
