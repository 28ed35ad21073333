package vault

import (
	"context"
	"fmt"
	"strconv"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

// FindWallet returns the unconsumed wallet with the given wallet id.
func FindWallet(ctx context.Context, v Vault, walletID string) (ledger.Typed[state.Wallet], error) {
	return single[state.Wallet](ctx, v, "wallet "+walletID, Criteria{
		Kind:   state.KindWallet,
		Fields: state.Projection{"wallet_id": walletID},
	})
}

// FindWalletOfType returns the unconsumed wallet with the given id and kind.
func FindWalletOfType(ctx context.Context, v Vault, walletID string, kind state.WalletType) (ledger.Typed[state.Wallet], error) {
	return single[state.Wallet](ctx, v, fmt.Sprintf("%s wallet %s", kind, walletID), Criteria{
		Kind:   state.KindWallet,
		Fields: state.Projection{"wallet_id": walletID, "type": string(kind)},
	})
}

// FindRecognisedIssuer returns the recognition of issuer for currency.
func FindRecognisedIssuer(ctx context.Context, v Vault, issuer, currency string) (ledger.Typed[state.RecognisedIssuer], error) {
	currency = money.NormalizeCurrency(currency)
	return single[state.RecognisedIssuer](ctx, v, fmt.Sprintf("recognised issuer %s for %s", issuer, currency), Criteria{
		Kind:   state.KindRecognisedIssuer,
		Fields: state.Projection{"issuer": issuer, "currency": currency},
	})
}

// FindActivatedIssuer returns the activated recognised issuer for currency.
func FindActivatedIssuer(ctx context.Context, v Vault, currency string) (ledger.Typed[state.RecognisedIssuer], error) {
	currency = money.NormalizeCurrency(currency)
	return single[state.RecognisedIssuer](ctx, v, "activated issuer for "+currency, Criteria{
		Kind:   state.KindRecognisedIssuer,
		Fields: state.Projection{"currency": currency, "activated": strconv.FormatBool(true)},
	})
}

// FindMoney returns unspent tokens held by owner from issuer in currency.
func FindMoney(ctx context.Context, v Vault, owner, issuer, currency string) ([]ledger.Typed[state.Money], error) {
	refs, err := v.FindUnconsumed(ctx, Criteria{
		Kind:   state.KindMoney,
		Fields: state.Projection{"owner": owner, "issuer": issuer, "currency": money.NormalizeCurrency(currency)},
	})
	if err != nil {
		return nil, err
	}
	return typed[state.Money](refs), nil
}

func single[T state.State](ctx context.Context, v Vault, what string, c Criteria) (ledger.Typed[T], error) {
	refs, err := v.FindUnconsumed(ctx, c)
	if err != nil {
		return ledger.Typed[T]{}, err
	}
	found := typed[T](refs)
	switch len(found) {
	case 0:
		return ledger.Typed[T]{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, what)
	case 1:
		return found[0], nil
	default:
		return ledger.Typed[T]{}, fmt.Errorf("%w: %d unconsumed records for %s", ledger.ErrDuplicateState, len(found), what)
	}
}

func typed[T state.State](refs []ledger.StateAndRef) []ledger.Typed[T] {
	out := make([]ledger.Typed[T], 0, len(refs))
	for _, sr := range refs {
		if t, ok := ledger.As[T](sr); ok {
			out = append(out, t)
		}
	}
	return out
}
