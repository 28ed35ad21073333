package vault

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
	issuer  = identity.DeriveKeyPair("issuer", "vault-test").Party()
	gateway = identity.DeriveKeyPair("gateway", "vault-test").Party()
	other   = identity.DeriveKeyPair("other", "vault-test").Party()
	now     = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func signed(t *testing.T, tx ledger.Transition) ledger.SignedTransition {
	t.Helper()
	stx, err := ledger.NewSignedTransition(tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return stx
}

func wallet(id string, owner identity.Party) state.Wallet {
	return state.NewWallet(state.WalletSpec{WalletID: id, Owner: owner, Currency: "USD", Type: state.WalletGatewayOwned}, issuer, now)
}

func TestRecordConsumesInputsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	v := NewMemory(identity.Party{})

	create := signed(t, ledger.Transition{
		Outputs:   []state.State{wallet("w1", gateway)},
		Command:   ledger.Command{Kind: ledger.CreateWallet, Signers: []identity.Party{issuer, gateway}},
		CreatedAt: now,
	})
	if err := v.Record(ctx, create); err != nil {
		t.Fatalf("record: %v", err)
	}
	w, err := FindWallet(ctx, v, "w1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	verify := signed(t, ledger.Transition{
		Inputs:    []ledger.StateAndRef{w.Untyped()},
		Outputs:   []state.State{w.State.MarkVerified(now)},
		Command:   ledger.Command{Kind: ledger.VerifyWallet, Signers: []identity.Party{issuer}},
		CreatedAt: now,
	})
	for i := 0; i < 2; i++ {
		if err := v.Record(ctx, verify); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	all, err := v.FindUnconsumed(ctx, Criteria{Kind: state.KindWallet})
	if err != nil {
		t.Fatalf("find unconsumed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single unconsumed wallet after recording twice, got %d", len(all))
	}
	if got := all[0].State.(state.Wallet); !got.Verified || all[0].Ref.TxID != verify.ID {
		t.Fatalf("unexpected head version %+v at %s", got, all[0].Ref)
	}
	if _, err := v.Transaction(ctx, verify.ID); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, err := v.Transaction(ctx, "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOwnerScopedVaultKeepsRelevantOutputs(t *testing.T) {
	ctx := context.Background()
	v := NewMemory(other)
	stx := signed(t, ledger.Transition{
		Outputs: []state.State{
			wallet("mine", other),
			state.NewMoney(issuer, gateway, money.New(100, "USD")),
		},
		Command:   ledger.Command{Kind: ledger.IssueFunds},
		CreatedAt: now,
	})
	if err := v.Record(ctx, stx); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := FindWallet(ctx, v, "mine"); err != nil {
		t.Fatalf("expected own wallet, got %v", err)
	}
	tokens, err := FindMoney(ctx, v, gateway.Name, issuer.Name, "usd")
	if err != nil {
		t.Fatalf("find money: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected tokens of another party to be skipped, got %d", len(tokens))
	}
}

func TestQueriesByProjection(t *testing.T) {
	ctx := context.Background()
	v := NewMemory(identity.Party{})
	active := state.NewRecognisedIssuer(issuer, gateway, "USD", now)
	stx := signed(t, ledger.Transition{
		Outputs: []state.State{
			active,
			state.NewRecognisedIssuer(other, gateway, "USD", now).WithActivation(false, now),
			wallet("dup", gateway),
			wallet("dup", other),
		},
		Command:   ledger.Command{Kind: ledger.AddRecognisedIssuer},
		CreatedAt: now,
	})
	if err := v.Record(ctx, stx); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := FindActivatedIssuer(ctx, v, "usd")
	if err != nil {
		t.Fatalf("activated issuer: %v", err)
	}
	if !got.State.Issuer.Equal(issuer) {
		t.Fatalf("expected %s, got %s", issuer, got.State.Issuer)
	}
	if _, err := FindRecognisedIssuer(ctx, v, "other", "USD"); err != nil {
		t.Fatalf("recognised issuer: %v", err)
	}
	if _, err := FindActivatedIssuer(ctx, v, "NGN"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := FindWallet(ctx, v, "dup"); !errors.Is(err, ledger.ErrDuplicateState) {
		t.Fatalf("expected duplicate state, got %v", err)
	}
	if _, err := FindWalletOfType(ctx, v, "dup", state.WalletIssuerOwned); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found for wrong type, got %v", err)
	}
}
