package contract

import (
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
)

func verifyAddRecognisedIssuer(tx ledger.Transition, policy Policy) error {
	if err := requireShape(tx, counts{}, counts{state.KindRecognisedIssuer: 1}); err != nil {
		return err
	}
	ri := ledger.OutputsOf[state.RecognisedIssuer](tx)[0]
	if !policy.Allowed(ri.Currency) {
		return ledger.Violation(RuleCurrency, "currency %q is not allowed", ri.Currency)
	}
	if !ri.Activated {
		return ledger.Violation(RuleActivation, "a newly recognised issuer must be activated")
	}
	return requireSigners(tx, ri.AddedBy)
}

func verifyActivateRecognisedIssuer(tx ledger.Transition) error {
	inputs := ledger.InputsOf[state.RecognisedIssuer](tx)
	outputs := ledger.OutputsOf[state.RecognisedIssuer](tx)
	n := len(inputs)
	if n != 1 && n != 2 {
		return ledger.Violation(RuleShape, "activation consumes one or two recognised issuers, got %d", n)
	}
	if err := requireShape(tx, counts{state.KindRecognisedIssuer: n}, counts{state.KindRecognisedIssuer: n}); err != nil {
		return err
	}

	var activated []state.RecognisedIssuer
	for _, out := range outputs {
		if out.Activated {
			activated = append(activated, out)
		}
	}
	if len(activated) != 1 {
		return ledger.Violation(RuleActivation, "exactly one output must be activated, got %d", len(activated))
	}
	target := activated[0]
	targetIn, ok := issuerByLinearID(inputs, target.ID)
	if !ok {
		return ledger.Violation(RuleLinearID, "activated issuer has no input version")
	}
	if targetIn.Activated {
		return ledger.Violation(RuleActivation, "issuer %s is already activated", targetIn.Issuer)
	}
	if !targetIn.SameExceptActivation(target) {
		return ledger.Violation(RuleImmutable, "only the activation flag may change")
	}
	signers := []state.RecognisedIssuer{targetIn}

	if n == 2 {
		var previousIn state.RecognisedIssuer
		for _, in := range inputs {
			if in.State.ID != target.ID {
				previousIn = in.State
			}
		}
		previousOut, ok := outputByLinearID(outputs, previousIn.ID)
		if !ok {
			return ledger.Violation(RuleLinearID, "deactivated issuer has no output version")
		}
		if !previousIn.Activated || previousOut.Activated {
			return ledger.Violation(RuleActivation, "the previously active issuer must be deactivated")
		}
		if previousIn.Currency != target.Currency {
			return ledger.Violation(RuleCurrency, "activation may only displace an issuer of the same currency")
		}
		if !previousIn.SameExceptActivation(previousOut) {
			return ledger.Violation(RuleImmutable, "only the activation flag may change")
		}
		signers = append(signers, previousIn)
	}

	for _, ri := range signers {
		if err := requireSigners(tx, ri.AddedBy); err != nil {
			return err
		}
	}
	return nil
}

func verifyDeactivateRecognisedIssuer(tx ledger.Transition) error {
	err := requireShape(tx, counts{state.KindRecognisedIssuer: 1}, counts{state.KindRecognisedIssuer: 1})
	if err != nil {
		return err
	}
	in := ledger.InputsOf[state.RecognisedIssuer](tx)[0].State
	out := ledger.OutputsOf[state.RecognisedIssuer](tx)[0]
	if !in.Activated {
		return ledger.Violation(RuleActivation, "issuer %s is already deactivated", in.Issuer)
	}
	if out.Activated {
		return ledger.Violation(RuleActivation, "output issuer must be deactivated")
	}
	if !in.SameExceptActivation(out) {
		return ledger.Violation(RuleImmutable, "only the activation flag may change")
	}
	return requireSigners(tx, in.AddedBy)
}

func issuerByLinearID(inputs []ledger.Typed[state.RecognisedIssuer], id state.LinearID) (state.RecognisedIssuer, bool) {
	for _, in := range inputs {
		if in.State.ID == id {
			return in.State, true
		}
	}
	return state.RecognisedIssuer{}, false
}

func outputByLinearID(outputs []state.RecognisedIssuer, id state.LinearID) (state.RecognisedIssuer, bool) {
	for _, out := range outputs {
		if out.ID == id {
			return out, true
		}
	}
	return state.RecognisedIssuer{}, false
}
