package reservation

import (
	"context"
	"sync"

	"github.com/congo-pay/custody/internal/ledger"
)

type memoryReserver struct {
	mu     sync.Mutex
	holder map[ledger.StateRef]string
	byFlow map[string][]ledger.StateRef
}

// NewMemory returns a process-local Reserver.
func NewMemory() Reserver {
	return &memoryReserver{
		holder: make(map[ledger.StateRef]string),
		byFlow: make(map[string][]ledger.StateRef),
	}
}

func (r *memoryReserver) Reserve(_ context.Context, flowID string, refs []ledger.StateRef) ([]ledger.StateRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var contended []ledger.StateRef
	for _, ref := range refs {
		holder, held := r.holder[ref]
		switch {
		case !held:
			r.holder[ref] = flowID
			r.byFlow[flowID] = append(r.byFlow[flowID], ref)
		case holder != flowID:
			contended = append(contended, ref)
		}
	}
	return contended, nil
}

func (r *memoryReserver) Release(_ context.Context, flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range r.byFlow[flowID] {
		if r.holder[ref] == flowID {
			delete(r.holder, ref)
		}
	}
	delete(r.byFlow, flowID)
	return nil
}
