package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryRegistry struct {
	mu      sync.RWMutex
	parties map[string]Party
}

// NewMemoryRegistry builds an in-memory party directory for tests and development.
func NewMemoryRegistry(parties ...Party) Registry {
	r := &memoryRegistry{parties: make(map[string]Party)}
	for _, p := range parties {
		r.parties[p.Name] = p
	}
	return r
}

func (r *memoryRegistry) Register(_ context.Context, party Party) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.parties[party.Name]; ok {
		if existing.Equal(party) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrPartyExists, party.Name)
	}
	r.parties[party.Name] = party
	return nil
}

func (r *memoryRegistry) Resolve(_ context.Context, name string) (Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	party, ok := r.parties[name]
	if !ok {
		return Party{}, fmt.Errorf("%w: %s", ErrUnknownParty, name)
	}
	return party, nil
}

func (r *memoryRegistry) List(_ context.Context) ([]Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Party, 0, len(r.parties))
	for _, p := range r.parties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
