package notary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

var (
	notaryKey = identity.DeriveKeyPair("notary", "notary-test")
	ownerKey  = identity.DeriveKeyPair("owner", "notary-test")
	now       = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func spend(t *testing.T, input ledger.StateAndRef, salt string) ledger.SignedTransition {
	t.Helper()
	w := input.State.(state.Wallet)
	stx, err := ledger.NewSignedTransition(ledger.Transition{
		Inputs:    []ledger.StateAndRef{input},
		Outputs:   []state.State{w.WithBalance(money.New(1, "USD"), now)},
		Command:   ledger.Command{Kind: ledger.TransferFunds, Signers: []identity.Party{ownerKey.Party()}},
		Notary:    notaryKey.Party(),
		Salt:      salt,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	stx, err = stx.WithSignature(stx.SignWith(ownerKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return stx
}

func input() ledger.StateAndRef {
	w := state.NewWallet(state.WalletSpec{
		WalletID: "w1", Owner: ownerKey.Party(), Currency: "USD", Type: state.WalletIssuerOwned,
	}, ownerKey.Party(), now)
	return ledger.StateAndRef{Ref: ledger.StateRef{TxID: "genesis", Index: 0}, State: w}
}

func TestNotarizeCountersigns(t *testing.T) {
	n := NewMemory(notaryKey)
	stx, err := n.Notarize(context.Background(), spend(t, input(), "a"))
	if err != nil {
		t.Fatalf("notarize: %v", err)
	}
	if err := stx.VerifyNotarized(notaryKey.Party()); err != nil {
		t.Fatalf("expected a valid notary signature: %v", err)
	}
}

func TestNotarizeRejectsDoubleSpend(t *testing.T) {
	n := NewMemory(notaryKey)
	ctx := context.Background()
	first := spend(t, input(), "a")
	second := spend(t, input(), "b")

	if _, err := n.Notarize(ctx, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := n.Notarize(ctx, second)
	if !errors.Is(err, ledger.ErrNotarizationConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.ConsumedBy != first.ID {
		t.Fatalf("expected conflict naming %s, got %v", first.ID, err)
	}

	if _, err := n.Notarize(ctx, first); err != nil {
		t.Fatalf("re-notarizing the committed transition should succeed: %v", err)
	}
}

func TestNotarizeRequiresSignatures(t *testing.T) {
	n := NewMemory(notaryKey)
	stx := spend(t, input(), "a")
	stx.Signatures = nil
	if _, err := n.Notarize(context.Background(), stx); !errors.Is(err, ledger.ErrUnauthorizedSigner) {
		t.Fatalf("expected unauthorized signer, got %v", err)
	}

	other := NewMemory(identity.DeriveKeyPair("other-notary", "notary-test"))
	if _, err := other.Notarize(context.Background(), spend(t, input(), "b")); !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request for the wrong notary, got %v", err)
	}
}
