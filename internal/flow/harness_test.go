package flow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/contract"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/notary"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/reservation"
	"github.com/congo-pay/custody/internal/session"
	"github.com/congo-pay/custody/internal/state"
	"github.com/congo-pay/custody/internal/vault"
)

const seed = "flow-test"

var nodeNames = []string{"issuer", "issuer-2", "gateway-a", "gateway-b"}

type node struct {
	*Service
	vault       *flakyVault
	reserver    reservation.Reserver
	checkpoints *checkpoint.PebbleStore
	endpoint    *session.Endpoint
	notices     *recorder
}

type harness struct {
	notary *barrierNotary
	nodes  map[string]*node
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	notaryKey := identity.DeriveKeyPair("notary", seed)
	parties := []identity.Party{notaryKey.Party()}
	keys := make(map[string]*identity.KeyPair, len(nodeNames))
	for _, name := range nodeNames {
		keys[name] = identity.DeriveKeyPair(name, seed)
		parties = append(parties, keys[name].Party())
	}

	registry := identity.NewMemoryRegistry(parties...)
	network := session.NewNetwork(logging.Discard())
	h := &harness{
		notary: &barrierNotary{Notary: notary.NewMemory(notaryKey)},
		nodes:  make(map[string]*node, len(nodeNames)),
	}

	for _, name := range nodeNames {
		key := keys[name]
		store, err := checkpoint.OpenPebble("")
		require.NoError(t, err)
		n := &node{
			vault:       &flakyVault{Vault: vault.NewMemory(key.Party())},
			reserver:    reservation.NewMemory(),
			checkpoints: store,
			endpoint:    network.Join(key.Party()),
			notices:     &recorder{},
		}
		n.Service = New(Deps{
			Signer:       key,
			Notary:       h.notary,
			Registry:     registry,
			Vault:        n.vault,
			Endpoint:     n.endpoint,
			Reservations: reservation.NewGuard(n.reserver, false, logging.Discard()),
			Checkpoints:  store,
			Notifier:     n.notices,
			Policy:       contract.DefaultPolicy(),
			Logger:       logging.Discard(),
		})
		h.nodes[name] = n
		t.Cleanup(func() {
			n.endpoint.Close()
			_ = store.Close()
		})
	}
	return h
}

func (h *harness) node(name string) *node { return h.nodes[name] }

// onboard recognises "issuer" for USD on both gateways, creates and verifies a
// USD gateway wallet for each and an issuer-owned USD wallet for the issuer.
func (h *harness) onboard(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	issuer := h.node("issuer")

	for _, gw := range []string{"gateway-a", "gateway-b"} {
		_, err := h.node(gw).AddRecognisedIssuer(ctx, "issuer", "USD")
		require.NoError(t, err)
	}

	wallets := []CreateWalletRequest{
		{WalletID: "gw-a-usd", Owner: "gateway-a", Currency: "USD", Type: state.WalletGatewayOwned},
		{WalletID: "gw-b-usd", Owner: "gateway-b", Currency: "USD", Type: state.WalletGatewayOwned},
		{WalletID: "issuer-usd", Owner: "issuer", Currency: "USD", Type: state.WalletIssuerOwned},
	}
	for _, req := range wallets {
		_, err := issuer.CreateWallet(ctx, req)
		require.NoError(t, err, "create %s", req.WalletID)
		_, err = issuer.VerifyWallet(ctx, req.WalletID)
		require.NoError(t, err, "verify %s", req.WalletID)
	}
}

// ownWallet creates and verifies a wallet party holds and issues itself.
func (h *harness) ownWallet(t *testing.T, party, walletID string, kind state.WalletType) {
	t.Helper()
	ctx := context.Background()
	n := h.node(party)
	_, err := n.CreateWallet(ctx, CreateWalletRequest{WalletID: walletID, Owner: party, Currency: "USD", Type: kind})
	require.NoError(t, err, "create %s", walletID)
	_, err = n.VerifyWallet(ctx, walletID)
	require.NoError(t, err, "verify %s", walletID)
}

func (h *harness) issue(t *testing.T, walletID string, quantity int64) {
	t.Helper()
	_, err := h.node("issuer").IssueFunds(context.Background(), IssueFundsRequest{
		WalletID: walletID,
		Amount:   money.New(quantity, "USD"),
	})
	require.NoError(t, err)
}

func balance(t *testing.T, n *node, walletID string) int64 {
	t.Helper()
	w, err := n.Wallet(context.Background(), walletID)
	require.NoError(t, err)
	return w.Balance.Quantity
}

func tokens(t *testing.T, n *node, owner, issuer string) int64 {
	t.Helper()
	found, err := vault.FindMoney(context.Background(), n.vault, owner, issuer, "USD")
	require.NoError(t, err)
	var total int64
	for _, tok := range found {
		total += tok.State.Amount.Quantity
	}
	return total
}

// flakyVault fails the next Record once armed.
type flakyVault struct {
	vault.Vault
	failNext atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyVault) Record(ctx context.Context, stx ledger.SignedTransition) error {
	if f.failNext.CompareAndSwap(true, false) {
		return errDiskFull
	}
	return f.Vault.Record(ctx, stx)
}

// barrierNotary holds notarization requests until the armed number of callers
// have arrived, so concurrent flows reach the uniqueness check together.
type barrierNotary struct {
	notary.Notary

	mu      sync.Mutex
	pending int
	release chan struct{}
}

func (b *barrierNotary) arm(callers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = callers
	b.release = make(chan struct{})
}

// open lets held and later callers through without waiting for the rest.
func (b *barrierNotary) open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.release != nil {
		close(b.release)
		b.release = nil
	}
}

func (b *barrierNotary) Notarize(ctx context.Context, stx ledger.SignedTransition) (ledger.SignedTransition, error) {
	b.mu.Lock()
	release := b.release
	if release != nil {
		b.pending--
		if b.pending == 0 {
			close(release)
			b.release = nil
		}
	}
	b.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ledger.SignedTransition{}, ctx.Err()
		}
	}
	return b.Notary.Notarize(ctx, stx)
}

type recorder struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (r *recorder) Send(_ context.Context, msg notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) count(kind, destination string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Kind == kind && m.Destination == destination {
			n++
		}
	}
	return n
}
