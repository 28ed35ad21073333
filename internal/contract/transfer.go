package contract

import (
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

func verifyTransferFunds(tx ledger.Transition) error {
	in := countKinds(inputStates(tx))
	out := countKinds(tx.Outputs)
	moneyIn, moneyOut := in[state.KindMoney], out[state.KindMoney]
	delete(in, state.KindMoney)
	delete(out, state.KindMoney)
	if !sameCounts(in, counts{state.KindWallet: 2}) {
		return ledger.Violation(RuleShape, "transfer expects two wallet inputs, got %s", in)
	}
	if !sameCounts(out, counts{state.KindWallet: 2, state.KindTransferReceipt: 1}) {
		return ledger.Violation(RuleShape, "transfer expects two wallets and one receipt as outputs, got %s", out)
	}

	receipt := ledger.OutputsOf[state.TransferReceipt](tx)[0]
	if receipt.SenderWalletID == receipt.RecipientWalletID {
		return ledger.Violation(RuleReceipt, "sender and recipient wallets must differ")
	}
	senderIn, ok := walletByID(walletInputs(tx), receipt.SenderWalletID)
	if !ok {
		return ledger.Violation(RuleReceipt, "sender wallet %s is not an input", receipt.SenderWalletID)
	}
	recipientIn, ok := walletByID(walletInputs(tx), receipt.RecipientWalletID)
	if !ok {
		return ledger.Violation(RuleReceipt, "recipient wallet %s is not an input", receipt.RecipientWalletID)
	}
	senderOut, ok := walletByLinearID(ledger.OutputsOf[state.Wallet](tx), senderIn.ID)
	if !ok {
		return ledger.Violation(RuleLinearID, "sender wallet has no output version")
	}
	recipientOut, ok := walletByLinearID(ledger.OutputsOf[state.Wallet](tx), recipientIn.ID)
	if !ok {
		return ledger.Violation(RuleLinearID, "recipient wallet has no output version")
	}

	amount := receipt.Amount
	if !amount.IsPositive() {
		return ledger.Violation(RuleAmount, "transfer amount must be positive")
	}
	if senderIn.Currency() != recipientIn.Currency() || amount.Currency != senderIn.Currency() {
		return ledger.Violation(RuleCurrency, "sender %s, recipient %s and amount %s must share currency",
			senderIn.Currency(), recipientIn.Currency(), amount.Currency)
	}
	if !senderIn.Verified || !recipientIn.Verified {
		return ledger.Violation(RuleVerified, "both wallets must be verified before a transfer")
	}
	if !senderIn.SameExceptBalance(senderOut) || !recipientIn.SameExceptBalance(recipientOut) {
		return ledger.Violation(RuleOnlyBalance, "only wallet balances may change")
	}

	debit, err := delta(senderIn.Balance, senderOut.Balance)
	if err != nil {
		return err
	}
	credit, err := delta(recipientIn.Balance, recipientOut.Balance)
	if err != nil {
		return err
	}
	if debit != credit.Negate() {
		return ledger.Violation(RuleConservation, "debit %s and credit %s must cancel", debit, credit)
	}
	if credit != amount {
		return ledger.Violation(RuleConservation, "credit %s must equal the transfer amount %s", credit, amount)
	}
	if senderOut.Balance.IsNegative() {
		return ledger.Violation(RuleNonNegative, "sender balance may not become negative")
	}

	if !receipt.Sender.Equal(senderIn.Owner) || !receipt.Recipient.Equal(recipientIn.Owner) {
		return ledger.Violation(RuleReceipt, "receipt parties must be the wallet owners")
	}
	if kind, ok := state.ClassifyTransfer(senderIn.Type, recipientIn.Type); !ok || kind != receipt.Type {
		return ledger.Violation(RuleClassification, "%s to %s is not a %s transfer", senderIn.Type, recipientIn.Type, receipt.Type)
	}

	if err := requireSigners(tx, senderIn.Owner); err != nil {
		return err
	}

	if receipt.Type.IsOnUs() {
		if moneyIn != 0 || moneyOut != 0 {
			return ledger.Violation(RuleMoney, "on-us transfers do not move money tokens")
		}
		return nil
	}
	return verifyTokenSpend(tx, senderIn, recipientIn, amount)
}

// verifyTokenSpend checks the money tokens moved by a not-on-us transfer.
func verifyTokenSpend(tx ledger.Transition, sender, recipient state.Wallet, amount money.Amount) error {
	if sender.Owner.Equal(recipient.Owner) {
		return ledger.Violation(RuleOwnership, "not-on-us transfers must cross custodians")
	}
	spent := ledger.InputsOf[state.Money](tx)
	produced := ledger.OutputsOf[state.Money](tx)
	if len(spent) == 0 {
		return ledger.Violation(RuleMoney, "not-on-us transfers must spend money tokens")
	}

	issuer := spent[0].State.Issuer
	var owners []identity.Party
	spentTotal := money.Zero(amount.Currency)
	for _, tok := range spent {
		if err := checkToken(tok.State, issuer, amount.Currency); err != nil {
			return err
		}
		if !tok.State.Owner.Equal(sender.Owner) {
			return ledger.Violation(RuleMoney, "spent tokens must belong to the sender")
		}
		owners = append(owners, tok.State.Owner)
		var err error
		if spentTotal, err = add(spentTotal, tok.State.Amount); err != nil {
			return err
		}
	}

	producedTotal := money.Zero(amount.Currency)
	paid := money.Zero(amount.Currency)
	for _, tok := range produced {
		if err := checkToken(tok, issuer, amount.Currency); err != nil {
			return err
		}
		var err error
		switch {
		case tok.Owner.Equal(recipient.Owner):
			paid, err = add(paid, tok.Amount)
		case tok.Owner.Equal(sender.Owner):
		default:
			return ledger.Violation(RuleMoney, "tokens may only move to the recipient or back to the sender")
		}
		if err != nil {
			return err
		}
		if producedTotal, err = add(producedTotal, tok.Amount); err != nil {
			return err
		}
	}

	if spentTotal != producedTotal {
		return ledger.Violation(RuleConservation, "spent tokens %s must equal produced tokens %s", spentTotal, producedTotal)
	}
	if paid != amount {
		return ledger.Violation(RuleMoney, "recipient tokens %s must equal the transfer amount %s", paid, amount)
	}
	return requireSigners(tx, owners...)
}

func add(a, b money.Amount) (money.Amount, error) {
	sum, err := a.Plus(b)
	if err != nil {
		return money.Amount{}, ledger.Violation(RuleAmount, "%v", err)
	}
	return sum, nil
}

// delta is after minus before.
func delta(before, after money.Amount) (money.Amount, error) {
	d, err := after.Minus(before)
	if err != nil {
		return money.Amount{}, ledger.Violation(RuleAmount, "%v", err)
	}
	return d, nil
}

func checkToken(tok state.Money, issuer identity.Party, currency string) error {
	if !tok.Issuer.Equal(issuer) {
		return ledger.Violation(RuleMoney, "all tokens must come from a single issuer")
	}
	if tok.Amount.Currency != currency {
		return ledger.Violation(RuleCurrency, "token currency %s does not match %s", tok.Amount.Currency, currency)
	}
	if !tok.Amount.IsPositive() {
		return ledger.Violation(RuleMoney, "token amounts must be positive")
	}
	return nil
}

func walletInputs(tx ledger.Transition) []state.Wallet {
	var out []state.Wallet
	for _, w := range ledger.InputsOf[state.Wallet](tx) {
		out = append(out, w.State)
	}
	return out
}

func walletByID(wallets []state.Wallet, walletID string) (state.Wallet, bool) {
	for _, w := range wallets {
		if w.WalletID() == walletID {
			return w, true
		}
	}
	return state.Wallet{}, false
}

func walletByLinearID(wallets []state.Wallet, id state.LinearID) (state.Wallet, bool) {
	for _, w := range wallets {
		if w.ID == id {
			return w, true
		}
	}
	return state.Wallet{}, false
}
