package node

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AppName:           "CustodyNode",
		AppEnv:            "test",
		Parties:           []string{"issuer", "gateway-a", "gateway-b"},
		NotaryName:        "notary",
		KeySeed:           "node-test",
		AllowedCurrencies: []string{"USD"},
		IssuanceCeilings:  map[string]int64{"USD": 1_000_000},
		CheckpointDir:     t.TempDir(),
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := Policy(testConfig(t))
	if !p.Allowed("usd") || p.Allowed("NGN") {
		t.Fatalf("unexpected allowed currencies %+v", p.AllowedCurrencies)
	}
	if c, ok := p.Ceiling("USD"); !ok || c != 1_000_000 {
		t.Fatalf("unexpected ceiling %d", c)
	}
}

func TestNodeRegistersPartiesAndNotary(t *testing.T) {
	ctx := context.Background()
	n, err := New(ctx, Options{Cfg: testConfig(t), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer n.Close()

	parties, err := n.Registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(parties) != 4 {
		t.Fatalf("expected 3 parties and the notary, got %d", len(parties))
	}
	want := identity.DeriveKeyPair("notary", "node-test").Party()
	if !n.Notary.Party().Equal(want) {
		t.Fatalf("notary key should derive from the seed")
	}
	if _, err := n.Directory.Lookup("notary"); err == nil {
		t.Fatalf("the notary is not hosted as a flow party")
	}
	if err := n.Resume(ctx); err != nil {
		t.Fatalf("resume with no checkpoints: %v", err)
	}
}

func TestNodeRunsFlowsWithRedisReservations(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.StrictReservations = true
	cfg.ReservationTTL = time.Minute
	n, err := New(ctx, Options{Cfg: cfg, Cache: cache, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	defer n.Close()

	issuer, _ := n.Directory.Lookup("issuer")
	gatewayA, _ := n.Directory.Lookup("gateway-a")
	gatewayB, _ := n.Directory.Lookup("gateway-b")

	for _, gw := range []*flow.Service{gatewayA, gatewayB} {
		if _, err := gw.AddRecognisedIssuer(ctx, "issuer", "USD"); err != nil {
			t.Fatalf("recognise issuer: %v", err)
		}
	}
	for _, req := range []flow.CreateWalletRequest{
		{WalletID: "gw-a-usd", Owner: "gateway-a", Currency: "USD", Type: state.WalletGatewayOwned},
		{WalletID: "gw-b-usd", Owner: "gateway-b", Currency: "USD", Type: state.WalletGatewayOwned},
	} {
		if _, err := issuer.CreateWallet(ctx, req); err != nil {
			t.Fatalf("create %s: %v", req.WalletID, err)
		}
		if _, err := issuer.VerifyWallet(ctx, req.WalletID); err != nil {
			t.Fatalf("verify %s: %v", req.WalletID, err)
		}
	}

	if _, err := issuer.IssueFunds(ctx, flow.IssueFundsRequest{WalletID: "gw-a-usd", Amount: money.New(50_000, "USD")}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := gatewayA.TransferFunds(ctx, flow.TransferFundsRequest{
		SenderWalletID:    "gw-a-usd",
		RecipientWalletID: "gw-b-usd",
		Recipient:         "gateway-b",
		Amount:            money.New(20_000, "USD"),
		Type:              state.GatewayToGateway,
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	w, err := gatewayB.Wallet(ctx, "gw-b-usd")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.Balance.Quantity != 20_000 {
		t.Fatalf("expected 20000, got %d", w.Balance.Quantity)
	}

	// every flow released its holds
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no reservation keys left, got %v", keys)
	}

	inFlight, err := gatewayA.InFlight(ctx)
	if err != nil {
		t.Fatalf("in flight: %v", err)
	}
	if len(inFlight) != 0 {
		t.Fatalf("expected no suspended flows, got %d", len(inFlight))
	}
}
