package flow

import (
	"context"
	"fmt"

	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
)

// AddRecognisedIssuer records that the calling party trusts issuerName as the
// source of newly issued money in currency. The recognition starts activated.
func (s *Service) AddRecognisedIssuer(ctx context.Context, issuerName, currency string) (Committed, error) {
	issuer, err := s.resolve(ctx, issuerName)
	if err != nil {
		return Committed{}, err
	}

	ctx, r := s.start(ctx, protocolAddIssuer, checkpoint.Initiator)
	stx, err := func() (ledger.SignedTransition, error) {
		if err := s.claimIssuerChange(ctx, r, currency); err != nil {
			return ledger.SignedTransition{}, err
		}
		tx, err := s.builder.AddRecognisedIssuer(ctx, issuer, s.self, currency)
		if err != nil {
			return ledger.SignedTransition{}, err
		}
		return s.signAndFinalize(ctx, r, tx)
	}()
	return r.committed(ctx, stx, err)
}

// ActivateRecognisedIssuer activates issuerName for currency and deactivates the
// issuer previously active for it in the same transition.
func (s *Service) ActivateRecognisedIssuer(ctx context.Context, issuerName, currency string) (Committed, error) {
	ctx, r := s.start(ctx, protocolActivate, checkpoint.Initiator)
	stx, err := s.changeActivation(ctx, r, currency, func() (ledger.Transition, error) {
		return s.builder.ActivateRecognisedIssuer(ctx, issuerName, currency)
	})
	return r.committed(ctx, stx, err)
}

// DeactivateRecognisedIssuer deactivates issuerName for currency.
func (s *Service) DeactivateRecognisedIssuer(ctx context.Context, issuerName, currency string) (Committed, error) {
	ctx, r := s.start(ctx, protocolDeactivate, checkpoint.Initiator)
	stx, err := s.changeActivation(ctx, r, currency, func() (ledger.Transition, error) {
		return s.builder.DeactivateRecognisedIssuer(ctx, issuerName, currency)
	})
	return r.committed(ctx, stx, err)
}

func (s *Service) changeActivation(ctx context.Context, r *run, currency string, build func() (ledger.Transition, error)) (ledger.SignedTransition, error) {
	if err := s.claimIssuerChange(ctx, r, currency); err != nil {
		return ledger.SignedTransition{}, err
	}
	tx, err := build()
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := r.reserve(ctx, tx.InputRefs()); err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.signAndFinalize(ctx, r, tx)
}

// claimIssuerChange serializes the recognised issuer changes of one currency so
// at most one recognition is ever activated for it.
func (s *Service) claimIssuerChange(ctx context.Context, r *run, currency string) error {
	return r.claim(ctx, s.issuerKey(currency),
		fmt.Errorf("%w: another issuer change for %s is in flight", ledger.ErrInputReserved, money.NormalizeCurrency(currency)))
}
