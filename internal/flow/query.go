package flow

import (
	"context"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
	"github.com/congo-pay/custody/internal/vault"
)

// Wallet returns the current version of a wallet known to this party.
func (s *Service) Wallet(ctx context.Context, walletID string) (state.Wallet, error) {
	w, err := vault.FindWallet(ctx, s.vault, walletID)
	if err != nil {
		return state.Wallet{}, err
	}
	return w.State, nil
}

// ActivatedIssuer returns the recognised issuer activated for currency.
func (s *Service) ActivatedIssuer(ctx context.Context, currency string) (state.RecognisedIssuer, error) {
	ri, err := vault.FindActivatedIssuer(ctx, s.vault, currency)
	if err != nil {
		return state.RecognisedIssuer{}, err
	}
	return ri.State, nil
}

// RecognisedIssuers lists this party's recognitions, activated or not.
func (s *Service) RecognisedIssuers(ctx context.Context) ([]state.RecognisedIssuer, error) {
	refs, err := s.vault.FindUnconsumed(ctx, vault.Criteria{Kind: state.KindRecognisedIssuer})
	if err != nil {
		return nil, err
	}
	out := make([]state.RecognisedIssuer, 0, len(refs))
	for _, sr := range refs {
		if ri, ok := ledger.As[state.RecognisedIssuer](sr); ok {
			out = append(out, ri.State)
		}
	}
	return out, nil
}

// Transaction returns a committed transition recorded by this party.
func (s *Service) Transaction(ctx context.Context, txID string) (ledger.SignedTransition, error) {
	return s.vault.Transaction(ctx, txID)
}
