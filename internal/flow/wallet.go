package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/session"
	"github.com/congo-pay/custody/internal/state"
	"github.com/congo-pay/custody/internal/vault"
)

// CreateWalletRequest describes a wallet to be issued by the calling party.
type CreateWalletRequest struct {
	WalletID string             `json:"wallet_id"`
	Owner    string             `json:"owner"`
	Currency string             `json:"currency"`
	Type     state.WalletType   `json:"type"`
	Status   state.WalletStatus `json:"status,omitempty"`
}

// CreateWallet issues a new wallet. A gateway-owned wallet is proposed to its
// owner, which validates the proposal, assembles the transition and finalizes
// it once both parties signed. Other wallets are created and owned by the caller.
func (s *Service) CreateWallet(ctx context.Context, req CreateWalletRequest) (Committed, error) {
	owner, err := s.resolve(ctx, req.Owner)
	if err != nil {
		return Committed{}, err
	}
	spec := state.WalletSpec{
		WalletID: req.WalletID,
		Owner:    owner,
		Currency: money.NormalizeCurrency(req.Currency),
		Status:   req.Status,
		Type:     req.Type,
	}
	if spec.WalletID == "" || !spec.Type.Valid() {
		return Committed{}, fmt.Errorf("%w: wallet id and a valid wallet type are required", ledger.ErrInvalidRequest)
	}
	if _, err := vault.FindWallet(ctx, s.vault, spec.WalletID); err == nil {
		return Committed{}, fmt.Errorf("%w: wallet %s", ledger.ErrDuplicateState, spec.WalletID)
	}

	ctx, r := s.start(ctx, ProtocolCreateWallet, checkpoint.Initiator)
	stx, err := s.createWallet(ctx, r, spec)
	return r.committed(ctx, stx, err)
}

func (s *Service) createWallet(ctx context.Context, r *run, spec state.WalletSpec) (ledger.SignedTransition, error) {
	if err := s.claimWalletID(ctx, r, spec.WalletID); err != nil {
		return ledger.SignedTransition{}, err
	}
	if spec.Type != state.WalletGatewayOwned {
		if !spec.Owner.Equal(s.self) {
			return ledger.SignedTransition{}, fmt.Errorf("%w: %s wallets must be owned by their issuer", ledger.ErrInvalidRequest, spec.Type)
		}
		tx, err := s.builder.CreateWallet(ctx, spec, s.self)
		if err != nil {
			return ledger.SignedTransition{}, err
		}
		return s.signAndFinalize(ctx, r, tx)
	}

	if spec.Owner.Equal(s.self) {
		return ledger.SignedTransition{}, fmt.Errorf("%w: a gateway wallet cannot be owned by its issuer", ledger.ErrInvalidRequest)
	}
	sess, err := r.open(ctx, spec.Owner, ProtocolCreateWallet)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := sess.Send(ctx, msgProposal, spec); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := r.advance(ctx, checkpoint.AwaitingCounterpartyValidation); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := r.advance(ctx, checkpoint.AwaitingCosignatures); err != nil {
		return ledger.SignedTransition{}, err
	}

	stx, err := s.signOnRequest(ctx, r, sess, func(tx ledger.Transition) error {
		if tx.Command.Kind != ledger.CreateWallet {
			return fmt.Errorf("%w: expected %s, got %s", ledger.ErrInvalidRequest, ledger.CreateWallet, tx.Command.Kind)
		}
		w := ledger.OutputsOf[state.Wallet](tx)[0]
		switch {
		case !w.IssuedBy.Equal(s.self):
			return fmt.Errorf("%w: wallet must be issued by %s", ledger.ErrInvalidRequest, s.self)
		case !w.Owner.Equal(sess.Counterparty()):
			return fmt.Errorf("%w: wallet must be owned by %s", ledger.ErrInvalidRequest, sess.Counterparty())
		case w.WalletID() != spec.WalletID || w.Currency() != spec.Currency || w.Type != spec.Type:
			return fmt.Errorf("%w: wallet does not match the proposal", ledger.ErrInvalidRequest)
		}
		return nil
	})
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.receiveFinality(ctx, r, sess, stx.ID)
}

// handleCreateWallet validates a gateway wallet proposal from its issuer and
// assembles the creation.
func (s *Service) handleCreateWallet(ctx context.Context, sess session.Session) error {
	ctx, r := s.start(ctx, ProtocolCreateWallet, checkpoint.Responder)
	r.attach(sess)
	_, err := s.respondCreateWallet(ctx, r, sess)
	return r.finish(ctx, err)
}

func (s *Service) respondCreateWallet(ctx context.Context, r *run, sess session.Session) (ledger.SignedTransition, error) {
	var spec state.WalletSpec
	if err := sess.Receive(ctx, msgProposal, &spec); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := r.advance(ctx, checkpoint.AwaitingCounterpartyValidation); err != nil {
		return ledger.SignedTransition{}, err
	}

	issuer := sess.Counterparty()
	if !spec.Owner.Equal(s.self) {
		return ledger.SignedTransition{}, fmt.Errorf("%w: proposed owner %s is not %s", ledger.ErrInvalidRequest, spec.Owner, s.self)
	}
	if spec.Type != state.WalletGatewayOwned {
		return ledger.SignedTransition{}, fmt.Errorf("%w: only gateway-owned wallets are co-created", ledger.ErrInvalidRequest)
	}
	if err := s.requireActivatedIssuer(ctx, issuer, money.NormalizeCurrency(spec.Currency)); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := s.claimWalletID(ctx, r, spec.WalletID); err != nil {
		return ledger.SignedTransition{}, err
	}

	tx, err := s.builder.CreateWallet(ctx, spec, issuer)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	stx, err := ledger.NewSignedTransition(tx)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	if stx, err = s.collectSignatures(ctx, r, stx, r.sessions); err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.finalize(ctx, r, stx)
}

// claimWalletID reserves a wallet id until the creating flow ends and checks
// the id is still free.
func (s *Service) claimWalletID(ctx context.Context, r *run, walletID string) error {
	duplicate := fmt.Errorf("%w: wallet %s", ledger.ErrDuplicateState, walletID)
	if err := r.claim(ctx, walletKey(walletID), duplicate); err != nil {
		return err
	}
	if _, err := vault.FindWallet(ctx, s.vault, walletID); err == nil {
		return duplicate
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	return nil
}

// VerifyWallet marks a wallet issued by the caller as verified.
func (s *Service) VerifyWallet(ctx context.Context, walletID string) (Committed, error) {
	w, err := vault.FindWallet(ctx, s.vault, walletID)
	if err != nil {
		return Committed{}, err
	}
	if !w.State.IssuedBy.Equal(s.self) {
		return Committed{}, fmt.Errorf("%w: wallet %s was issued by %s", ledger.ErrInvalidRequest, walletID, w.State.IssuedBy)
	}

	ctx, r := s.start(ctx, protocolVerifyWallet, checkpoint.Initiator)
	stx, err := s.verifyWallet(ctx, r, walletID)
	return r.committed(ctx, stx, err)
}

func (s *Service) verifyWallet(ctx context.Context, r *run, walletID string) (ledger.SignedTransition, error) {
	tx, err := s.builder.VerifyWallet(ctx, walletID)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := r.reserve(ctx, tx.InputRefs()); err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.signAndFinalize(ctx, r, tx)
}

// signAndFinalize completes a transition this party signs alone.
func (s *Service) signAndFinalize(ctx context.Context, r *run, tx ledger.Transition) (ledger.SignedTransition, error) {
	stx, err := ledger.NewSignedTransition(tx)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	if stx, err = s.collectSignatures(ctx, r, stx, nil); err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.finalize(ctx, r, stx)
}
