package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

type entry struct {
	sr       ledger.StateAndRef
	consumed bool
}

type memoryVault struct {
	mu      sync.RWMutex
	owner   identity.Party
	entries map[ledger.StateRef]*entry
	order   []ledger.StateRef
	txs     map[string]ledger.SignedTransition
}

// NewMemory builds an in-memory vault that keeps outputs in which owner participates.
// A zero owner keeps every output.
func NewMemory(owner identity.Party) Vault {
	return &memoryVault{
		owner:   owner,
		entries: make(map[ledger.StateRef]*entry),
		txs:     make(map[string]ledger.SignedTransition),
	}
}

func (v *memoryVault) Record(_ context.Context, stx ledger.SignedTransition) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.txs[stx.ID]; exists {
		return nil
	}
	for _, ref := range stx.Tx.InputRefs() {
		if e, ok := v.entries[ref]; ok {
			e.consumed = true
		}
	}
	for _, out := range stx.Outputs() {
		if !v.relevant(out) {
			continue
		}
		v.entries[out.Ref] = &entry{sr: out}
		v.order = append(v.order, out.Ref)
	}
	v.txs[stx.ID] = stx
	return nil
}

func (v *memoryVault) relevant(sr ledger.StateAndRef) bool {
	return v.owner.IsZero() || identity.Contains(sr.State.Participants(), v.owner)
}

func (v *memoryVault) FindUnconsumed(_ context.Context, c Criteria) ([]ledger.StateAndRef, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []ledger.StateAndRef
	for _, ref := range v.order {
		e := v.entries[ref]
		if e.consumed || !matches(c, e.sr.State) {
			continue
		}
		out = append(out, e.sr)
	}
	return out, nil
}

func (v *memoryVault) Transaction(_ context.Context, txID string) (ledger.SignedTransition, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	stx, ok := v.txs[txID]
	if !ok {
		return ledger.SignedTransition{}, fmt.Errorf("%w: transaction %s", ledger.ErrNotFound, txID)
	}
	return stx, nil
}
