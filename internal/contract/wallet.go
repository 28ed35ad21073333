package contract

import (
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
)

func verifyCreateWallet(tx ledger.Transition, policy Policy) error {
	if err := requireShape(tx, counts{}, counts{state.KindWallet: 1}); err != nil {
		return err
	}
	w := ledger.OutputsOf[state.Wallet](tx)[0]

	if w.WalletID() == "" {
		return ledger.Violation(RuleLinearID, "wallet id is required")
	}
	if !w.Balance.IsZero() {
		return ledger.Violation(RuleZeroBalance, "new wallet balance must be zero, got %s", w.Balance)
	}
	if !policy.Allowed(w.Currency()) {
		return ledger.Violation(RuleCurrency, "currency %q is not allowed", w.Currency())
	}
	if w.Verified {
		return ledger.Violation(RuleUnverified, "new wallet must not be verified")
	}
	if !w.Type.Valid() {
		return ledger.Violation(RuleWalletType, "wallet type %q is not valid", w.Type)
	}

	if w.Type == state.WalletGatewayOwned {
		if w.Owner.Equal(w.IssuedBy) {
			return ledger.Violation(RuleOwnership, "gateway wallet owner must differ from the issuer")
		}
		return requireExactSigners(tx, w.Owner, w.IssuedBy)
	}
	if !w.Owner.Equal(w.IssuedBy) {
		return ledger.Violation(RuleOwnership, "%s wallet must be owned by its issuer", w.Type)
	}
	return requireExactSigners(tx, w.Owner)
}

func verifyVerifyWallet(tx ledger.Transition) error {
	if err := requireShape(tx, counts{state.KindWallet: 1}, counts{state.KindWallet: 1}); err != nil {
		return err
	}
	in := ledger.InputsOf[state.Wallet](tx)[0].State
	out := ledger.OutputsOf[state.Wallet](tx)[0]

	if in.Verified {
		return ledger.Violation(RuleVerified, "wallet %s is already verified", in.WalletID())
	}
	if !out.Verified {
		return ledger.Violation(RuleVerified, "output wallet must be verified")
	}
	if !in.SameExceptVerified(out) {
		return ledger.Violation(RuleImmutable, "only the verified flag may change")
	}
	return requireSigners(tx, in.IssuedBy)
}

func verifyIssueFunds(tx ledger.Transition, policy Policy) error {
	err := requireShape(tx,
		counts{state.KindWallet: 1},
		counts{state.KindWallet: 1, state.KindIssuance: 1, state.KindMoney: 1})
	if err != nil {
		return err
	}
	in := ledger.InputsOf[state.Wallet](tx)[0].State
	out := ledger.OutputsOf[state.Wallet](tx)[0]
	issuance := ledger.OutputsOf[state.Issuance](tx)[0]
	created := ledger.OutputsOf[state.Money](tx)[0]

	if in.Type != state.WalletGatewayOwned {
		return ledger.Violation(RuleWalletType, "funds may only be issued into gateway-owned wallets")
	}
	if in.Owner.Equal(in.IssuedBy) {
		return ledger.Violation(RuleSelfIssuance, "issuer may not issue funds to itself")
	}
	if !in.SameExceptBalance(out) {
		return ledger.Violation(RuleOnlyBalance, "only the balance may change")
	}

	delta, err := out.Balance.Minus(in.Balance)
	if err != nil {
		return ledger.Violation(RuleCurrency, "%v", err)
	}
	if !delta.IsPositive() {
		return ledger.Violation(RuleIncrease, "output balance must exceed input balance")
	}
	ceiling, ok := policy.Ceiling(delta.Currency)
	if !ok {
		return ledger.Violation(RuleCurrency, "no issuance ceiling for %s", delta.Currency)
	}
	if delta.Quantity > ceiling {
		return ledger.Violation(RuleCeiling, "issuance of %d exceeds the %s ceiling of %d", delta.Quantity, delta.Currency, ceiling)
	}

	if issuance.Amount != delta {
		return ledger.Violation(RuleIssuance, "issuance amount %s must equal balance delta %s", issuance.Amount, delta)
	}
	if !issuance.Recipient.Equal(in.Owner) {
		return ledger.Violation(RuleIssuance, "issuance recipient must be the wallet owner")
	}
	if !issuance.Issuer.Equal(in.IssuedBy) {
		return ledger.Violation(RuleIssuance, "issuance issuer must be the wallet issuer")
	}

	if created.Amount != delta {
		return ledger.Violation(RuleMoney, "created money %s must equal balance delta %s", created.Amount, delta)
	}
	if !created.Owner.Equal(in.Owner) {
		return ledger.Violation(RuleMoney, "created money must be owned by the wallet owner")
	}
	if !created.Issuer.Equal(issuance.Issuer) {
		return ledger.Violation(RuleMoney, "created money must be issued by the issuance issuer")
	}

	return requireSigners(tx, in.IssuedBy, in.Owner)
}
