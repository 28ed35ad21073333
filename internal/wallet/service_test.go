package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

type fakeFlows struct {
	created  []flow.CreateWalletRequest
	verified []string
	wallets  map[string]state.Wallet
}

func (f *fakeFlows) CreateWallet(_ context.Context, req flow.CreateWalletRequest) (flow.Committed, error) {
	f.created = append(f.created, req)
	return flow.Committed{FlowID: "flow-" + req.WalletID}, nil
}

func (f *fakeFlows) VerifyWallet(_ context.Context, walletID string) (flow.Committed, error) {
	f.verified = append(f.verified, walletID)
	return flow.Committed{FlowID: "verify-" + walletID}, nil
}

func (f *fakeFlows) Wallet(_ context.Context, walletID string) (state.Wallet, error) {
	w, ok := f.wallets[walletID]
	if !ok {
		return state.Wallet{}, fmt.Errorf("%w: wallet %s", ledger.ErrNotFound, walletID)
	}
	return w, nil
}

func newTestService(flows *fakeFlows) *Service {
	return NewService(func(party string) (Flows, error) {
		if party != "issuer" {
			return nil, fmt.Errorf("%w: party %s", ledger.ErrNotFound, party)
		}
		return flows, nil
	})
}

func TestCreateDefaultsOwnerToParty(t *testing.T) {
	flows := &fakeFlows{}
	svc := newTestService(flows)

	res, err := svc.Create(context.Background(), "issuer", CreateInput{
		WalletID: " reserve ",
		Currency: "usd",
		Type:     "issuer_owned",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.FlowID != "flow-reserve" {
		t.Fatalf("unexpected flow id %s", res.FlowID)
	}
	if len(flows.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(flows.created))
	}
	req := flows.created[0]
	if req.Owner != "issuer" || req.Type != state.WalletIssuerOwned || req.WalletID != "reserve" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	flows := &fakeFlows{}
	svc := newTestService(flows)

	_, err := svc.Create(context.Background(), "issuer", CreateInput{WalletID: "w1", Currency: "USD", Type: "savings"})
	if !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if len(flows.created) != 0 {
		t.Fatalf("flow should not run for an invalid type")
	}
}

func TestUnknownPartyIsNotFound(t *testing.T) {
	svc := newTestService(&fakeFlows{})

	if _, err := svc.Verify(context.Background(), "mallory", "w1"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetRendersMajorUnits(t *testing.T) {
	issuer := identity.DeriveKeyPair("issuer", "wallet-test").Party()
	gateway := identity.DeriveKeyPair("gateway", "wallet-test").Party()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	w := state.NewWallet(state.WalletSpec{
		WalletID: "gw-usd",
		Owner:    gateway,
		Currency: "USD",
		Type:     state.WalletGatewayOwned,
	}, issuer, now).WithBalance(money.New(12_550, "USD"), now.Add(time.Minute))

	svc := newTestService(&fakeFlows{wallets: map[string]state.Wallet{"gw-usd": w}})

	got, err := svc.Get(context.Background(), "issuer", "gw-usd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Balance.Amount != "125.50" || got.Balance.Minor != 12_550 {
		t.Fatalf("unexpected balance %+v", got.Balance)
	}
	if got.Owner != "gateway" || got.IssuedBy != "issuer" || got.Verified {
		t.Fatalf("unexpected wallet %+v", got)
	}

	if _, err := svc.Get(context.Background(), "issuer", "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
