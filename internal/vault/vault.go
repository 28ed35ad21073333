// Package vault is a party's local index of committed ledger records.
package vault

import (
	"context"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
)

// Criteria selects unconsumed records of one kind whose projection contains Fields.
type Criteria struct {
	Kind   state.Kind
	Fields state.Projection
}

// Vault records committed transitions and answers queries over unconsumed records.
type Vault interface {
	// Record marks the transition's inputs consumed and stores its outputs. Recording
	// the same transition twice is a no-op.
	Record(ctx context.Context, stx ledger.SignedTransition) error
	FindUnconsumed(ctx context.Context, c Criteria) ([]ledger.StateAndRef, error)
	Transaction(ctx context.Context, txID string) (ledger.SignedTransition, error)
}

func matches(c Criteria, st state.State) bool {
	if st.Kind() != c.Kind {
		return false
	}
	if len(c.Fields) == 0 {
		return true
	}
	q, ok := st.(state.Queryable)
	if !ok {
		return false
	}
	projection := q.Projection()
	for k, v := range c.Fields {
		if projection[k] != v {
			return false
		}
	}
	return true
}
