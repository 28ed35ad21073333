// Package builder assembles candidate transitions from the local vault and checks
// them against the contract engine before anyone is asked to sign.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/contract"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
	"github.com/congo-pay/custody/internal/vault"
)

// Builder constructs transitions for one party.
type Builder struct {
	vault  vault.Vault
	policy contract.Policy
	notary identity.Party
	now    func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New returns a builder reading inputs from v and naming notary on every transition.
func New(v vault.Vault, policy contract.Policy, notary identity.Party, opts ...Option) *Builder {
	b := &Builder{vault: v, policy: policy, notary: notary, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Policy returns the currency policy transitions are checked against.
func (b *Builder) Policy() contract.Policy { return b.policy }

func (b *Builder) clock() time.Time { return b.now().UTC() }

// CreateWallet builds the creation of a wallet issued by issuedBy. Gateway-owned
// wallets are co-signed by their owner.
func (b *Builder) CreateWallet(ctx context.Context, spec state.WalletSpec, issuedBy identity.Party) (ledger.Transition, error) {
	if spec.WalletID == "" {
		return ledger.Transition{}, fmt.Errorf("%w: wallet id is required", ledger.ErrInvalidRequest)
	}
	if _, err := vault.FindWallet(ctx, b.vault, spec.WalletID); err == nil {
		return ledger.Transition{}, fmt.Errorf("%w: wallet %s", ledger.ErrDuplicateState, spec.WalletID)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transition{}, err
	}

	w := state.NewWallet(spec, issuedBy, b.clock())
	signers := []identity.Party{w.Owner}
	if w.Type == state.WalletGatewayOwned {
		signers = []identity.Party{issuedBy, w.Owner}
	}
	return b.finish(ledger.CreateWallet, nil, []state.State{w}, signers)
}

// VerifyWallet builds the transition marking a wallet verified.
func (b *Builder) VerifyWallet(ctx context.Context, walletID string) (ledger.Transition, error) {
	in, err := vault.FindWallet(ctx, b.vault, walletID)
	if err != nil {
		return ledger.Transition{}, err
	}
	if in.State.Verified {
		return ledger.Transition{}, fmt.Errorf("%w: wallet %s", ledger.ErrAlreadyVerified, walletID)
	}
	out := in.State.MarkVerified(b.clock())
	return b.finish(ledger.VerifyWallet, []ledger.StateAndRef{in.Untyped()}, []state.State{out},
		[]identity.Party{in.State.IssuedBy})
}

// IssueFunds builds an issuance of amount into a gateway-owned wallet.
func (b *Builder) IssueFunds(ctx context.Context, walletID string, amount money.Amount) (ledger.Transition, error) {
	in, err := vault.FindWalletOfType(ctx, b.vault, walletID, state.WalletGatewayOwned)
	if err != nil {
		return ledger.Transition{}, err
	}
	w := in.State
	if amount.Currency != w.Currency() {
		return ledger.Transition{}, &ledger.UnacceptableCurrencyError{Requested: amount.Currency, Wallet: w.Currency()}
	}
	if !amount.IsPositive() {
		return ledger.Transition{}, fmt.Errorf("%w: issuance amount must be positive", ledger.ErrInvalidRequest)
	}

	now := b.clock()
	balance, err := w.Balance.Plus(amount)
	if err != nil {
		return ledger.Transition{}, err
	}
	outputs := []state.State{
		w.WithBalance(balance, now),
		state.NewIssuance(w.IssuedBy, w.Owner, amount, now),
		state.NewMoney(w.IssuedBy, w.Owner, amount),
	}
	return b.finish(ledger.IssueFunds, []ledger.StateAndRef{in.Untyped()}, outputs,
		[]identity.Party{w.IssuedBy, w.Owner})
}

// Transfer describes a movement between two wallets. The sender wallet is
// resolved from the local vault; the recipient is supplied by the caller because
// a not-on-us recipient lives in another party's vault.
type Transfer struct {
	SenderWalletID string
	Recipient      ledger.Typed[state.Wallet]
	Amount         money.Amount
	Type           state.TransferType
}

// TransferFunds builds a transfer. Not-on-us transfers also move money tokens
// from the sender to the recipient: an issuer spends the tokens it issued, any
// other sender spends tokens of its activated issuer.
func (b *Builder) TransferFunds(ctx context.Context, req Transfer) (ledger.Transition, error) {
	if !req.Type.Valid() {
		return ledger.Transition{}, fmt.Errorf("%w: unknown transfer type %q", ledger.ErrInvalidRequest, req.Type)
	}
	sender, err := vault.FindWallet(ctx, b.vault, req.SenderWalletID)
	if err != nil {
		return ledger.Transition{}, err
	}
	recipient := req.Recipient
	if sender.State.WalletID() == recipient.State.WalletID() {
		return ledger.Transition{}, fmt.Errorf("%w: sender and recipient wallets must differ", ledger.ErrInvalidRequest)
	}
	if sender.State.Type != req.Type.Origin() || recipient.State.Type != req.Type.Destination() {
		return ledger.Transition{}, fmt.Errorf("%w: %s to %s is not a %s transfer",
			ledger.ErrInvalidRequest, sender.State.Type, recipient.State.Type, req.Type)
	}

	now := b.clock()
	senderOut, recipientOut, err := MoveFunds(sender.State, recipient.State, req.Amount, now)
	if err != nil {
		return ledger.Transition{}, err
	}

	inputs := []ledger.StateAndRef{sender.Untyped(), recipient.Untyped()}
	outputs := []state.State{
		senderOut,
		recipientOut,
		state.NewTransferReceipt(sender.State, recipient.State, req.Amount, req.Type, now),
	}
	signers := []identity.Party{sender.State.Owner}

	if !req.Type.IsOnUs() {
		issuer, err := b.tokenIssuer(ctx, sender.State, req.Amount.Currency)
		if err != nil {
			return ledger.Transition{}, err
		}
		tokens, change, err := b.SelectTokens(ctx, sender.State.Owner, issuer, req.Amount)
		if err != nil {
			return ledger.Transition{}, err
		}
		for _, tok := range tokens {
			inputs = append(inputs, tok.Untyped())
			signers = append(signers, tok.State.Owner)
		}
		outputs = append(outputs, state.NewMoney(issuer, recipient.State.Owner, req.Amount))
		if change.IsPositive() {
			outputs = append(outputs, state.NewMoney(issuer, sender.State.Owner, change))
		}
	}

	return b.finish(ledger.TransferFunds, inputs, outputs, identity.Distinct(signers...))
}

// tokenIssuer is the issuer whose tokens sender spends in currency.
func (b *Builder) tokenIssuer(ctx context.Context, sender state.Wallet, currency string) (identity.Party, error) {
	if sender.Type == state.WalletIssuerOwned {
		return sender.Owner, nil
	}
	active, err := vault.FindActivatedIssuer(ctx, b.vault, currency)
	if errors.Is(err, ledger.ErrNotFound) {
		return identity.Party{}, fmt.Errorf("%w: no activated issuer for %s", ledger.ErrIssuerNotActivated, currency)
	}
	if err != nil {
		return identity.Party{}, err
	}
	return active.State.Issuer, nil
}

// MoveFunds debits sender and credits recipient by amount, returning the next
// version of both wallets.
func MoveFunds(sender, recipient state.Wallet, amount money.Amount, now time.Time) (state.Wallet, state.Wallet, error) {
	if sender.Currency() != recipient.Currency() {
		return state.Wallet{}, state.Wallet{}, fmt.Errorf("%w: sender holds %s, recipient holds %s",
			ledger.ErrCurrencyMismatch, sender.Currency(), recipient.Currency())
	}
	if amount.Currency != sender.Currency() {
		return state.Wallet{}, state.Wallet{}, &ledger.UnacceptableCurrencyError{Requested: amount.Currency, Wallet: sender.Currency()}
	}
	if !amount.IsPositive() {
		return state.Wallet{}, state.Wallet{}, fmt.Errorf("%w: transfer amount must be positive", ledger.ErrInvalidRequest)
	}
	if sender.Balance.Quantity < amount.Quantity {
		return state.Wallet{}, state.Wallet{}, fmt.Errorf("%w: wallet %s holds %s, needs %s",
			ledger.ErrInsufficientFunds, sender.WalletID(), sender.Balance, amount)
	}
	debited, err := sender.Balance.Minus(amount)
	if err != nil {
		return state.Wallet{}, state.Wallet{}, err
	}
	credited, err := recipient.Balance.Plus(amount)
	if err != nil {
		return state.Wallet{}, state.Wallet{}, err
	}
	return sender.WithBalance(debited, now), recipient.WithBalance(credited, now), nil
}

// SelectTokens picks unspent tokens of owner from issuer covering amount, oldest
// first, and returns the change left over.
func (b *Builder) SelectTokens(ctx context.Context, owner, issuer identity.Party, amount money.Amount) ([]ledger.Typed[state.Money], money.Amount, error) {
	available, err := vault.FindMoney(ctx, b.vault, owner.Name, issuer.Name, amount.Currency)
	if err != nil {
		return nil, money.Amount{}, err
	}
	var (
		picked []ledger.Typed[state.Money]
		total  = money.Zero(amount.Currency)
	)
	for _, tok := range available {
		if total.Quantity >= amount.Quantity {
			break
		}
		picked = append(picked, tok)
		if total, err = total.Plus(tok.State.Amount); err != nil {
			return nil, money.Amount{}, err
		}
	}
	if total.Quantity < amount.Quantity {
		return nil, money.Amount{}, fmt.Errorf("%w: %s holds %s of %s tokens, needs %s",
			ledger.ErrInsufficientFunds, owner, total, issuer, amount)
	}
	change, err := total.Minus(amount)
	if err != nil {
		return nil, money.Amount{}, err
	}
	return picked, change, nil
}

// AddRecognisedIssuer builds the recognition of issuer for currency by addedBy.
func (b *Builder) AddRecognisedIssuer(ctx context.Context, issuer, addedBy identity.Party, currency string) (ledger.Transition, error) {
	currency = money.NormalizeCurrency(currency)
	if active, err := vault.FindActivatedIssuer(ctx, b.vault, currency); err == nil {
		return ledger.Transition{}, fmt.Errorf("%w: %s is the activated issuer for %s", ledger.ErrAlreadyActivated, active.State.Issuer, currency)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transition{}, err
	}
	if _, err := vault.FindRecognisedIssuer(ctx, b.vault, issuer.Name, currency); err == nil {
		return ledger.Transition{}, fmt.Errorf("%w: %s is already recognised for %s", ledger.ErrDuplicateState, issuer, currency)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transition{}, err
	}

	ri := state.NewRecognisedIssuer(issuer, addedBy, currency, b.clock())
	return b.finish(ledger.AddRecognisedIssuer, nil, []state.State{ri}, []identity.Party{addedBy})
}

// ActivateRecognisedIssuer activates a recognised issuer, deactivating the
// issuer currently active for the same currency.
func (b *Builder) ActivateRecognisedIssuer(ctx context.Context, issuerName, currency string) (ledger.Transition, error) {
	target, err := b.recognised(ctx, issuerName, currency)
	if err != nil {
		return ledger.Transition{}, err
	}
	if target.State.Activated {
		return ledger.Transition{}, fmt.Errorf("%w: %s for %s", ledger.ErrAlreadyActivated, issuerName, target.State.Currency)
	}

	now := b.clock()
	inputs := []ledger.StateAndRef{target.Untyped()}
	outputs := []state.State{target.State.WithActivation(true, now)}
	signers := []identity.Party{target.State.AddedBy}

	current, err := vault.FindActivatedIssuer(ctx, b.vault, target.State.Currency)
	switch {
	case err == nil:
		inputs = append(inputs, current.Untyped())
		outputs = append(outputs, current.State.WithActivation(false, now))
		signers = append(signers, current.State.AddedBy)
	case !errors.Is(err, ledger.ErrNotFound):
		return ledger.Transition{}, err
	}
	return b.finish(ledger.ActivateRecognisedIssuer, inputs, outputs, identity.Distinct(signers...))
}

// DeactivateRecognisedIssuer deactivates a recognised issuer.
func (b *Builder) DeactivateRecognisedIssuer(ctx context.Context, issuerName, currency string) (ledger.Transition, error) {
	target, err := b.recognised(ctx, issuerName, currency)
	if err != nil {
		return ledger.Transition{}, err
	}
	if !target.State.Activated {
		return ledger.Transition{}, fmt.Errorf("%w: %s for %s", ledger.ErrAlreadyDeactivated, issuerName, target.State.Currency)
	}
	out := target.State.WithActivation(false, b.clock())
	return b.finish(ledger.DeactivateRecognisedIssuer, []ledger.StateAndRef{target.Untyped()}, []state.State{out},
		[]identity.Party{target.State.AddedBy})
}

func (b *Builder) recognised(ctx context.Context, issuerName, currency string) (ledger.Typed[state.RecognisedIssuer], error) {
	ri, err := vault.FindRecognisedIssuer(ctx, b.vault, issuerName, currency)
	if errors.Is(err, ledger.ErrNotFound) {
		return ri, fmt.Errorf("%w: %s for %s", ledger.ErrUnrecognizedIssuer, issuerName, money.NormalizeCurrency(currency))
	}
	return ri, err
}

func (b *Builder) finish(kind ledger.CommandKind, inputs []ledger.StateAndRef, outputs []state.State, signers []identity.Party) (ledger.Transition, error) {
	tx := ledger.Transition{
		Inputs:    inputs,
		Outputs:   outputs,
		Command:   ledger.Command{Kind: kind, Signers: signers},
		Notary:    b.notary,
		Salt:      uuid.NewString(),
		CreatedAt: b.clock(),
	}
	if err := contract.Verify(tx, b.policy); err != nil {
		return ledger.Transition{}, err
	}
	return tx, nil
}
