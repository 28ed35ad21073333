package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/contract"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/session"
	"github.com/congo-pay/custody/internal/state"
	"github.com/congo-pay/custody/internal/vault"
)

// collectSignatures signs stx locally when this party is a required signer, then
// asks each session's counterparty to co-sign, in session order.
func (s *Service) collectSignatures(ctx context.Context, r *run, stx ledger.SignedTransition, sessions []session.Session) (ledger.SignedTransition, error) {
	var err error
	if identity.Contains(stx.Tx.Command.Signers, s.self) {
		if stx, err = stx.WithSignature(stx.SignWith(s.signer)); err != nil {
			return ledger.SignedTransition{}, err
		}
	}
	r.hold(stx)

	if len(sessions) > 0 {
		if err := r.advance(ctx, checkpoint.AwaitingCosignatures); err != nil {
			return ledger.SignedTransition{}, err
		}
	}
	for _, sess := range sessions {
		if err := sess.Send(ctx, msgTransition, stx); err != nil {
			return ledger.SignedTransition{}, err
		}
		var sig ledger.Signature
		if err := sess.Receive(ctx, msgSignature, &sig); err != nil {
			return ledger.SignedTransition{}, err
		}
		if !sig.By.Equal(sess.Counterparty()) {
			return ledger.SignedTransition{}, fmt.Errorf("%w: %s returned a signature by %s",
				ledger.ErrUnauthorizedSigner, sess.Counterparty(), sig.By)
		}
		if stx, err = stx.WithSignature(sig); err != nil {
			return ledger.SignedTransition{}, err
		}
		r.hold(stx)
		if err := r.save(ctx); err != nil {
			return ledger.SignedTransition{}, err
		}
	}

	if err := stx.VerifyRequiredSignatures(); err != nil {
		return ledger.SignedTransition{}, err
	}
	return stx, r.advance(ctx, checkpoint.Signed)
}

// signOnRequest receives a transition from the assembler, re-checks it
// independently and returns this party's signature.
func (s *Service) signOnRequest(ctx context.Context, r *run, sess session.Session, check func(ledger.Transition) error) (ledger.SignedTransition, error) {
	var stx ledger.SignedTransition
	if err := sess.Receive(ctx, msgTransition, &stx); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := stx.CheckIntegrity(); err != nil {
		return ledger.SignedTransition{}, err
	}
	if !stx.Tx.Notary.Equal(s.notary.Party()) {
		return ledger.SignedTransition{}, fmt.Errorf("%w: unknown notary %s", ledger.ErrInvalidRequest, stx.Tx.Notary)
	}
	if !identity.Contains(stx.Tx.Command.Signers, s.self) {
		return ledger.SignedTransition{}, fmt.Errorf("%w: %s is not a required signer", ledger.ErrInvalidRequest, s.self)
	}
	if err := contract.Verify(stx.Tx, s.policy); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := check(stx.Tx); err != nil {
		return ledger.SignedTransition{}, err
	}

	r.hold(stx)
	if err := r.reserve(ctx, stx.Tx.InputRefs()); err != nil {
		return ledger.SignedTransition{}, err
	}
	sig := stx.SignWith(s.signer)
	if err := sess.Send(ctx, msgSignature, sig); err != nil {
		return ledger.SignedTransition{}, err
	}
	signed, err := stx.WithSignature(sig)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	r.hold(signed)
	return signed, r.advance(ctx, checkpoint.Signed)
}

// finalize notarizes a fully signed transition, records it and distributes it
// to the session counterparties and the remaining participants.
func (s *Service) finalize(ctx context.Context, r *run, stx ledger.SignedTransition) (ledger.SignedTransition, error) {
	if err := stx.VerifyRequiredSignatures(); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := contract.Verify(stx.Tx, s.policy); err != nil {
		return ledger.SignedTransition{}, err
	}

	r.hold(stx)
	r.cp.Assembler = true
	if err := r.advance(ctx, checkpoint.AwaitingNotarization); err != nil {
		return ledger.SignedTransition{}, err
	}

	notarized, err := s.notary.Notarize(ctx, stx)
	if err != nil {
		return ledger.SignedTransition{}, fmt.Errorf("notarize %s: %w", stx.ID, err)
	}
	r.notarized = true
	r.hold(notarized)
	if err := r.save(ctx); err != nil {
		return ledger.SignedTransition{}, err
	}

	if err := s.commit(ctx, r.cp.FlowID, notarized, r.sessions); err != nil {
		return ledger.SignedTransition{}, err
	}
	return notarized, r.advance(ctx, checkpoint.Committed)
}

// commit records a notarized transition and delivers it. Delivery failures are
// logged: the transition is final once notarized.
func (s *Service) commit(ctx context.Context, flowID string, stx ledger.SignedTransition, sessions []session.Session) error {
	if err := s.vault.Record(ctx, stx); err != nil {
		return fmt.Errorf("record %s: %w", stx.ID, err)
	}

	delivered := map[string]bool{s.self.Name: true}
	for _, sess := range sessions {
		if err := deliver(ctx, sess, stx); err != nil {
			s.logger.Warn("session delivery failed; falling back to broadcast",
				slog.String("flow_id", flowID), slog.String("to", sess.Counterparty().Name), slog.Any("error", err))
			continue
		}
		delivered[sess.Counterparty().Name] = true
	}
	for _, p := range stx.Tx.Participants() {
		if delivered[p.Name] {
			continue
		}
		if err := s.broadcast(ctx, p, stx); err != nil {
			s.logger.Warn("finality broadcast failed",
				slog.String("flow_id", flowID), slog.String("to", p.Name), slog.Any("error", err))
		}
	}

	for _, p := range stx.Tx.Participants() {
		s.notify(ctx, notification.Message{
			Kind:        notification.KindTransitionCommitted,
			Destination: p.Name,
			FlowID:      flowID,
			TxID:        stx.ID,
			Command:     string(stx.Tx.Command.Kind),
			Body:        fmt.Sprintf("%s committed by %s", stx.Tx.Command.Kind, s.self.Name),
		})
	}
	return nil
}

func deliver(ctx context.Context, sess session.Session, stx ledger.SignedTransition) error {
	if err := sess.Send(ctx, msgFinalized, stx); err != nil {
		return err
	}
	return sess.Receive(ctx, msgAck, nil)
}

func (s *Service) broadcast(ctx context.Context, to identity.Party, stx ledger.SignedTransition) error {
	sess, err := s.endpoint.Open(ctx, to, ProtocolFinality)
	if err != nil {
		return err
	}
	defer sess.Close()
	return deliver(ctx, sess, stx)
}

// accept verifies a finalized transition received from another party and records it.
func (s *Service) accept(ctx context.Context, stx ledger.SignedTransition, expectedID string) error {
	if expectedID != "" && stx.ID != expectedID {
		return fmt.Errorf("%w: finalized %s, expected %s", ledger.ErrInvalidRequest, stx.ID, expectedID)
	}
	if err := stx.VerifyRequiredSignatures(); err != nil {
		return err
	}
	if err := contract.Verify(stx.Tx, s.policy); err != nil {
		return err
	}
	if err := stx.VerifyNotarized(s.notary.Party()); err != nil {
		return err
	}
	if !identity.Contains(stx.Tx.Participants(), s.self) {
		return fmt.Errorf("%w: %s is not a participant of %s", ledger.ErrInvalidRequest, s.self, stx.ID)
	}
	return s.vault.Record(ctx, stx)
}

// receiveFinality waits for the assembler to deliver the notarized transition.
func (s *Service) receiveFinality(ctx context.Context, r *run, sess session.Session, expectedID string) (ledger.SignedTransition, error) {
	if err := r.advance(ctx, checkpoint.AwaitingNotarization); err != nil {
		return ledger.SignedTransition{}, err
	}
	var stx ledger.SignedTransition
	if err := sess.Receive(ctx, msgFinalized, &stx); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := s.accept(ctx, stx, expectedID); err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := sess.Send(ctx, msgAck, nil); err != nil {
		r.log.Warn("finality ack failed", slog.Any("error", err))
	}
	r.hold(stx)
	return stx, r.advance(ctx, checkpoint.Committed)
}

func (s *Service) handleFinality(ctx context.Context, sess session.Session) error {
	var stx ledger.SignedTransition
	if err := sess.Receive(ctx, msgFinalized, &stx); err != nil {
		return err
	}
	if err := s.accept(ctx, stx, ""); err != nil {
		return err
	}
	s.logger.Info("recorded transition",
		slog.String("flow_id", sess.FlowID()), slog.String("tx_id", stx.ID), slog.String("from", sess.Counterparty().Name))
	return sess.Send(ctx, msgAck, nil)
}

// walletRequest asks a counterparty for one of its wallets, either by id or by
// kind and currency.
type walletRequest struct {
	WalletID string           `json:"wallet_id,omitempty"`
	Type     state.WalletType `json:"type,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

// fetchWallet runs the fetch sub-protocol and checks the returned record is
// owned by the responder.
func (s *Service) fetchWallet(ctx context.Context, r *run, from identity.Party, req walletRequest) (ledger.Typed[state.Wallet], error) {
	sess, err := s.endpoint.Open(ctx, from, ProtocolFetchWallet)
	if err != nil {
		return ledger.Typed[state.Wallet]{}, err
	}
	defer sess.Close()
	r.cp.Counterparties = append(r.cp.Counterparties, from)

	if err := sess.Send(ctx, msgWalletRequest, req); err != nil {
		return ledger.Typed[state.Wallet]{}, err
	}
	var sr ledger.StateAndRef
	if err := sess.Receive(ctx, msgWallet, &sr); err != nil {
		return ledger.Typed[state.Wallet]{}, err
	}
	w, ok := ledger.As[state.Wallet](sr)
	switch {
	case !ok:
		return w, fmt.Errorf("%w: %s returned a %s, not a wallet", ledger.ErrInvalidRequest, from, sr.State.Kind())
	case !w.State.Owner.Equal(from):
		return w, fmt.Errorf("%w: wallet %s returned by %s is owned by %s", ledger.ErrInvalidRequest, w.State.WalletID(), from, w.State.Owner)
	case req.WalletID != "" && w.State.WalletID() != req.WalletID:
		return w, fmt.Errorf("%w: asked for wallet %s, got %s", ledger.ErrInvalidRequest, req.WalletID, w.State.WalletID())
	case req.Type != "" && w.State.Type != req.Type:
		return w, fmt.Errorf("%w: asked for a %s wallet, got %s", ledger.ErrInvalidRequest, req.Type, w.State.Type)
	}
	return w, r.save(ctx)
}

func (s *Service) handleFetchWallet(ctx context.Context, sess session.Session) error {
	var req walletRequest
	if err := sess.Receive(ctx, msgWalletRequest, &req); err != nil {
		return err
	}

	var (
		w   ledger.Typed[state.Wallet]
		err error
	)
	if req.WalletID != "" {
		w, err = vault.FindWallet(ctx, s.vault, req.WalletID)
	} else {
		w, err = s.walletOfType(ctx, req.Type, req.Currency)
	}
	if err != nil {
		return err
	}
	if !w.State.Owner.Equal(s.self) {
		return fmt.Errorf("%w: wallet %s is not held by %s", ledger.ErrNotFound, w.State.WalletID(), s.self)
	}
	return sess.Send(ctx, msgWallet, w.Untyped())
}

func (s *Service) walletOfType(ctx context.Context, kind state.WalletType, currency string) (ledger.Typed[state.Wallet], error) {
	refs, err := s.vault.FindUnconsumed(ctx, vault.Criteria{
		Kind: state.KindWallet,
		Fields: state.Projection{
			"owner":    s.self.Name,
			"type":     string(kind),
			"currency": currency,
		},
	})
	if err != nil {
		return ledger.Typed[state.Wallet]{}, err
	}
	for _, sr := range refs {
		if w, ok := ledger.As[state.Wallet](sr); ok {
			return w, nil
		}
	}
	return ledger.Typed[state.Wallet]{}, fmt.Errorf("%w: %s wallet in %s held by %s", ledger.ErrNotFound, kind, currency, s.self)
}

// requireActivatedIssuer checks issuer is recognised and activated for currency.
func (s *Service) requireActivatedIssuer(ctx context.Context, issuer identity.Party, currency string) error {
	ri, err := vault.FindRecognisedIssuer(ctx, s.vault, issuer.Name, currency)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%w: %s for %s", ledger.ErrUnrecognizedIssuer, issuer, currency)
	}
	if err != nil {
		return err
	}
	if !ri.State.Issuer.Equal(issuer) {
		return fmt.Errorf("%w: %s is recognised under a different key", ledger.ErrUnrecognizedIssuer, issuer)
	}
	if !ri.State.Activated {
		return fmt.Errorf("%w: %s for %s", ledger.ErrIssuerNotActivated, issuer, currency)
	}
	return nil
}
