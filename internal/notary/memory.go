package notary

import (
	"context"
	"sync"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

// Memory is an in-process notary.
type Memory struct {
	signer identity.Signer

	mu    sync.Mutex
	spent map[ledger.StateRef]string
}

// NewMemory returns a notary signing with signer.
func NewMemory(signer identity.Signer) *Memory {
	return &Memory{signer: signer, spent: make(map[ledger.StateRef]string)}
}

func (n *Memory) Party() identity.Party { return n.signer.Party() }

func (n *Memory) Notarize(_ context.Context, stx ledger.SignedTransition) (ledger.SignedTransition, error) {
	if err := validate(n.Party(), stx); err != nil {
		return ledger.SignedTransition{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	refs := stx.Tx.InputRefs()
	for _, ref := range refs {
		if by, ok := n.spent[ref]; ok && by != stx.ID {
			return ledger.SignedTransition{}, &ConflictError{Ref: ref, ConsumedBy: by}
		}
	}
	for _, ref := range refs {
		n.spent[ref] = stx.ID
	}
	return countersign(n.signer, stx), nil
}
