// Package contract verifies candidate transitions. Verification is a pure
// function of the transition and the currency policy; it never consults a
// vault, notary or counterparty.
package contract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
)

// Rule names reported in ledger.ContractViolation.
const (
	RuleCommand        = "command"
	RuleShape          = "shape"
	RuleLinearID       = "linear-id"
	RuleZeroBalance    = "zero-balance"
	RuleCurrency       = "currency"
	RuleUnverified     = "unverified-on-create"
	RuleWalletType     = "wallet-type"
	RuleOwnership      = "ownership"
	RuleSigners        = "signers"
	RuleVerified       = "verified"
	RuleOnlyBalance    = "only-balance-changes"
	RuleImmutable      = "immutable-fields"
	RuleIncrease       = "balance-increase"
	RuleCeiling        = "ceiling"
	RuleIssuance       = "issuance"
	RuleMoney          = "money"
	RuleSelfIssuance   = "self-issuance"
	RuleAmount         = "amount"
	RuleConservation   = "conservation"
	RuleNonNegative    = "non-negative"
	RuleReceipt        = "receipt"
	RuleClassification = "classification"
	RuleActivation     = "activation"
)

// Verify checks tx against the rules of its command.
func Verify(tx ledger.Transition, policy Policy) error {
	switch tx.Command.Kind {
	case ledger.CreateWallet:
		return verifyCreateWallet(tx, policy)
	case ledger.VerifyWallet:
		return verifyVerifyWallet(tx)
	case ledger.IssueFunds:
		return verifyIssueFunds(tx, policy)
	case ledger.TransferFunds:
		return verifyTransferFunds(tx)
	case ledger.AddRecognisedIssuer:
		return verifyAddRecognisedIssuer(tx, policy)
	case ledger.ActivateRecognisedIssuer:
		return verifyActivateRecognisedIssuer(tx)
	case ledger.DeactivateRecognisedIssuer:
		return verifyDeactivateRecognisedIssuer(tx)
	default:
		return ledger.Violation(RuleCommand, "unknown command %q", tx.Command.Kind)
	}
}

type counts map[state.Kind]int

func (c counts) String() string {
	parts := make([]string, 0, len(c))
	for k, n := range c {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}

func countKinds(states []state.State) counts {
	out := counts{}
	for _, st := range states {
		out[st.Kind()]++
	}
	return out
}

func inputStates(tx ledger.Transition) []state.State {
	out := make([]state.State, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		out = append(out, in.State)
	}
	return out
}

func sameCounts(got, want counts) bool {
	for k, n := range got {
		if want[k] != n {
			return false
		}
	}
	for k, n := range want {
		if got[k] != n {
			return false
		}
	}
	return true
}

// requireShape checks the exact number of records of each kind on both sides.
func requireShape(tx ledger.Transition, in, out counts) error {
	if got := countKinds(inputStates(tx)); !sameCounts(got, in) {
		return ledger.Violation(RuleShape, "%s expects inputs %s, got %s", tx.Command.Kind, in, got)
	}
	if got := countKinds(tx.Outputs); !sameCounts(got, out) {
		return ledger.Violation(RuleShape, "%s expects outputs %s, got %s", tx.Command.Kind, out, got)
	}
	return nil
}

// requireSigners checks that every party in required is a command signer.
func requireSigners(tx ledger.Transition, required ...identity.Party) error {
	for _, p := range required {
		if !identity.Contains(tx.Command.Signers, p) {
			return ledger.SignerViolation(RuleSigners, "%s must be a signer of %s", p, tx.Command.Kind)
		}
	}
	return nil
}

// requireExactSigners checks the signer set equals required.
func requireExactSigners(tx ledger.Transition, required ...identity.Party) error {
	if !identity.SameSet(tx.Command.Signers, required) {
		return ledger.SignerViolation(RuleSigners, "%s requires signers %v, got %v", tx.Command.Kind, required, tx.Command.Signers)
	}
	return nil
}
