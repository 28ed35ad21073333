package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/builder"
	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/session"
	"github.com/congo-pay/custody/internal/state"
	"github.com/congo-pay/custody/internal/vault"
)

// IssueFundsRequest credits a gateway-owned wallet with newly issued money.
type IssueFundsRequest struct {
	WalletID string       `json:"wallet_id"`
	Amount   money.Amount `json:"amount"`
}

// IssueFunds issues money into a gateway wallet issued by the caller. The wallet
// owner co-signs after checking the caller is its activated issuer.
func (s *Service) IssueFunds(ctx context.Context, req IssueFundsRequest) (Committed, error) {
	w, err := vault.FindWalletOfType(ctx, s.vault, req.WalletID, state.WalletGatewayOwned)
	if err != nil {
		return Committed{}, err
	}
	if !w.State.IssuedBy.Equal(s.self) {
		return Committed{}, fmt.Errorf("%w: wallet %s was issued by %s", ledger.ErrInvalidRequest, req.WalletID, w.State.IssuedBy)
	}

	ctx, r := s.start(ctx, ProtocolIssueFunds, checkpoint.Initiator)
	stx, err := s.issueFunds(ctx, r, w.State, money.New(req.Amount.Quantity, req.Amount.Currency))
	return r.committed(ctx, stx, err)
}

func (s *Service) issueFunds(ctx context.Context, r *run, w state.Wallet, amount money.Amount) (ledger.SignedTransition, error) {
	tx, err := s.builder.IssueFunds(ctx, w.WalletID(), amount)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	stx, err := ledger.NewSignedTransition(tx)
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	r.hold(stx)
	if err := r.reserve(ctx, tx.InputRefs()); err != nil {
		return ledger.SignedTransition{}, err
	}
	if _, err := r.open(ctx, w.Owner, ProtocolIssueFunds); err != nil {
		return ledger.SignedTransition{}, err
	}
	if stx, err = s.collectSignatures(ctx, r, stx, r.sessions); err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.finalize(ctx, r, stx)
}

// handleIssueFunds co-signs an issuance into one of this party's gateway wallets.
func (s *Service) handleIssueFunds(ctx context.Context, sess session.Session) error {
	ctx, r := s.start(ctx, ProtocolIssueFunds, checkpoint.Responder)
	r.attach(sess)
	issuer := sess.Counterparty()

	stx, err := s.signOnRequest(ctx, r, sess, func(tx ledger.Transition) error {
		if tx.Command.Kind != ledger.IssueFunds {
			return fmt.Errorf("%w: expected %s, got %s", ledger.ErrInvalidRequest, ledger.IssueFunds, tx.Command.Kind)
		}
		w := ledger.InputsOf[state.Wallet](tx)[0].State
		if !w.Owner.Equal(s.self) {
			return fmt.Errorf("%w: wallet %s is not owned by %s", ledger.ErrInvalidRequest, w.WalletID(), s.self)
		}
		if !w.IssuedBy.Equal(issuer) {
			return fmt.Errorf("%w: wallet %s was not issued by %s", ledger.ErrInvalidRequest, w.WalletID(), issuer)
		}
		token := ledger.OutputsOf[state.Money](tx)[0]
		if !token.Issuer.Equal(issuer) {
			return fmt.Errorf("%w: money must be issued by %s", ledger.ErrInvalidRequest, issuer)
		}
		return s.requireActivatedIssuer(ctx, issuer, token.Amount.Currency)
	})
	if err == nil {
		_, err = s.receiveFinality(ctx, r, sess, stx.ID)
	}
	return r.finish(ctx, err)
}

// TransferFundsRequest moves an amount between two wallets. Recipient names the
// party holding the recipient wallet; it may be empty for on-us transfers.
type TransferFundsRequest struct {
	SenderWalletID    string             `json:"sender_wallet_id"`
	RecipientWalletID string             `json:"recipient_wallet_id"`
	Recipient         string             `json:"recipient,omitempty"`
	Amount            money.Amount       `json:"amount"`
	Type              state.TransferType `json:"type"`
}

// TransferFunds moves funds out of a wallet owned by the caller. On-us transfers
// are resolved and signed locally. Not-on-us transfers fetch the recipient
// wallet from its owner and move tokens of the activated issuer along with the
// balance.
func (s *Service) TransferFunds(ctx context.Context, req TransferFundsRequest) (Committed, error) {
	if !req.Type.Valid() {
		return Committed{}, fmt.Errorf("%w: unknown transfer type %q", ledger.ErrInvalidRequest, req.Type)
	}
	sender, err := s.ownWallet(ctx, req.SenderWalletID)
	if err != nil {
		return Committed{}, err
	}

	ctx, r := s.start(ctx, protocolTransfer, checkpoint.Initiator)
	stx, err := s.transferFunds(ctx, r, sender, req)
	return r.committed(ctx, stx, err)
}

func (s *Service) transferFunds(ctx context.Context, r *run, sender ledger.Typed[state.Wallet], req TransferFundsRequest) (ledger.SignedTransition, error) {
	var recipient ledger.Typed[state.Wallet]
	if req.Type.IsOnUs() {
		if req.Recipient != "" && req.Recipient != s.self.Name {
			return ledger.SignedTransition{}, fmt.Errorf("%w: on-us transfers stay with %s", ledger.ErrInvalidRequest, s.self)
		}
		w, err := s.ownWallet(ctx, req.RecipientWalletID)
		if err != nil {
			return ledger.SignedTransition{}, err
		}
		recipient = w
	} else {
		party, err := s.resolve(ctx, req.Recipient)
		if err != nil {
			return ledger.SignedTransition{}, err
		}
		if party.Equal(s.self) {
			return ledger.SignedTransition{}, fmt.Errorf("%w: %s transfers must cross custodians", ledger.ErrInvalidRequest, req.Type)
		}
		if err := r.advance(ctx, checkpoint.AwaitingCounterpartyValidation); err != nil {
			return ledger.SignedTransition{}, err
		}
		if recipient, err = s.fetchWallet(ctx, r, party, walletRequest{WalletID: req.RecipientWalletID}); err != nil {
			return ledger.SignedTransition{}, err
		}
	}
	return s.move(ctx, r, sender, recipient, money.New(req.Amount.Quantity, req.Amount.Currency), req.Type)
}

// FundWalletRequest pays money from a wallet to a wallet of the activated
// issuer of its currency. RecipientWalletID may be left empty to pay the
// issuer's wallet of RecipientWalletType, which defaults to issuer-owned.
type FundWalletRequest struct {
	SenderWalletID      string           `json:"sender_wallet_id"`
	RecipientWalletID   string           `json:"recipient_wallet_id,omitempty"`
	RecipientWalletType state.WalletType `json:"recipient_wallet_type,omitempty"`
	Amount              money.Amount     `json:"amount"`
}

// fundable lists the wallet kinds of the activated issuer a funding may pay.
var fundable = map[state.WalletType]bool{
	state.WalletIssuerOwned:            true,
	state.WalletLiquidityProviderOwned: true,
	state.WalletRegularUserOwned:       true,
}

// FundWallet transfers funds to a wallet held by the activated issuer for the
// amount's currency. The transfer type follows from the wallet kinds and must
// cross custodians.
func (s *Service) FundWallet(ctx context.Context, req FundWalletRequest) (Committed, error) {
	if req.RecipientWalletType == "" {
		req.RecipientWalletType = state.WalletIssuerOwned
	}
	if !fundable[req.RecipientWalletType] {
		return Committed{}, fmt.Errorf("%w: cannot fund a %s wallet", ledger.ErrInvalidRequest, req.RecipientWalletType)
	}
	sender, err := s.ownWallet(ctx, req.SenderWalletID)
	if err != nil {
		return Committed{}, err
	}
	amount := money.New(req.Amount.Quantity, req.Amount.Currency)
	issuer, err := vault.FindActivatedIssuer(ctx, s.vault, amount.Currency)
	if errors.Is(err, ledger.ErrNotFound) {
		return Committed{}, fmt.Errorf("%w: no activated issuer for %s", ledger.ErrIssuerNotActivated, amount.Currency)
	}
	if err != nil {
		return Committed{}, err
	}
	if issuer.State.Issuer.Equal(s.self) {
		return Committed{}, fmt.Errorf("%w: %s is the activated issuer", ledger.ErrInvalidRequest, s.self)
	}

	ctx, r := s.start(ctx, protocolFundWallet, checkpoint.Initiator)
	stx, err := s.fundWallet(ctx, r, sender, issuer.State, req, amount)
	return r.committed(ctx, stx, err)
}

func (s *Service) fundWallet(ctx context.Context, r *run, sender ledger.Typed[state.Wallet], issuer state.RecognisedIssuer, req FundWalletRequest, amount money.Amount) (ledger.SignedTransition, error) {
	if err := r.advance(ctx, checkpoint.AwaitingCounterpartyValidation); err != nil {
		return ledger.SignedTransition{}, err
	}
	recipient, err := s.fetchWallet(ctx, r, issuer.Issuer, walletRequest{
		WalletID: req.RecipientWalletID,
		Type:     req.RecipientWalletType,
		Currency: amount.Currency,
	})
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	kind, ok := state.ClassifyTransfer(sender.State.Type, recipient.State.Type)
	if !ok || kind.IsOnUs() {
		return ledger.SignedTransition{}, fmt.Errorf("%w: cannot fund a %s wallet from a %s wallet",
			ledger.ErrInvalidRequest, recipient.State.Type, sender.State.Type)
	}
	return s.move(ctx, r, sender, recipient, amount, kind)
}

func (s *Service) move(ctx context.Context, r *run, sender, recipient ledger.Typed[state.Wallet], amount money.Amount, kind state.TransferType) (ledger.SignedTransition, error) {
	tx, err := s.builder.TransferFunds(ctx, builder.Transfer{
		SenderWalletID: sender.State.WalletID(),
		Recipient:      recipient,
		Amount:         amount,
		Type:           kind,
	})
	if err != nil {
		return ledger.SignedTransition{}, err
	}
	if err := r.reserve(ctx, tx.InputRefs()); err != nil {
		return ledger.SignedTransition{}, err
	}
	return s.signAndFinalize(ctx, r, tx)
}

func (s *Service) ownWallet(ctx context.Context, walletID string) (ledger.Typed[state.Wallet], error) {
	w, err := vault.FindWallet(ctx, s.vault, walletID)
	if err != nil {
		return w, err
	}
	if !w.State.Owner.Equal(s.self) {
		return w, fmt.Errorf("%w: wallet %s is owned by %s", ledger.ErrInvalidRequest, walletID, w.State.Owner)
	}
	return w, nil
}
