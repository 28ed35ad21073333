// Package notary provides uniqueness consensus: every state reference is
// consumed by at most one committed transition.
package notary

import (
	"context"
	"fmt"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

// Notary commits transitions and countersigns them.
type Notary interface {
	Party() identity.Party
	// Notarize commits the transition's inputs as consumed and returns it with the
	// notary signature attached. Notarizing an already committed transition again
	// returns the same result.
	Notarize(ctx context.Context, stx ledger.SignedTransition) (ledger.SignedTransition, error)
}

// ConflictError reports an input already consumed by another transition.
type ConflictError struct {
	Ref        ledger.StateRef
	ConsumedBy string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("notarization conflict: %s already consumed by %s", e.Ref, e.ConsumedBy)
}

func (e *ConflictError) Is(target error) bool {
	return target == ledger.ErrNotarizationConflict
}

// validate checks the request is addressed to self and carries every required signature.
func validate(self identity.Party, stx ledger.SignedTransition) error {
	if !stx.Tx.Notary.Equal(self) {
		return fmt.Errorf("%w: transition %s names notary %s", ledger.ErrInvalidRequest, stx.ID, stx.Tx.Notary)
	}
	if err := stx.VerifyRequiredSignatures(); err != nil {
		return err
	}
	seen := make(map[ledger.StateRef]bool, len(stx.Tx.Inputs))
	for _, ref := range stx.Tx.InputRefs() {
		if seen[ref] {
			return fmt.Errorf("%w: input %s appears twice", ledger.ErrInvalidRequest, ref)
		}
		seen[ref] = true
	}
	return nil
}

func countersign(signer identity.Signer, stx ledger.SignedTransition) ledger.SignedTransition {
	sig := stx.SignWith(signer)
	out := stx
	out.NotarySignature = &sig
	return out
}
