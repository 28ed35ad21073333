// Package reservation tracks which in-flight flow holds each input a party has
// put into a transition it is assembling or signing.
package reservation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/custody/internal/ledger"
)

// Reserver records input holds per flow.
type Reserver interface {
	// Reserve marks refs as held by flowID and returns the refs another flow already holds.
	// Refs held by nobody or by flowID itself are reserved; contended refs are left untouched.
	Reserve(ctx context.Context, flowID string, refs []ledger.StateRef) ([]ledger.StateRef, error)
	// Release drops every hold of flowID.
	Release(ctx context.Context, flowID string) error
}

// Guard applies the contention policy on top of a Reserver. In advisory mode
// contention is logged and the flow proceeds, leaving the notary to decide; in
// strict mode the flow is refused with ledger.ErrInputReserved.
type Guard struct {
	store  Reserver
	strict bool
	logger *slog.Logger
}

// NewGuard wraps store.
func NewGuard(store Reserver, strict bool, logger *slog.Logger) *Guard {
	return &Guard{store: store, strict: strict, logger: logger}
}

// Acquire reserves refs for flowID according to the guard's policy.
func (g *Guard) Acquire(ctx context.Context, flowID string, refs []ledger.StateRef) error {
	if len(refs) == 0 {
		return nil
	}
	contended, err := g.store.Reserve(ctx, flowID, refs)
	if err != nil {
		return fmt.Errorf("reserve inputs: %w", err)
	}
	if len(contended) == 0 {
		return nil
	}
	if !g.strict {
		g.logger.Warn("inputs held by another flow", slog.String("flow_id", flowID), slog.Any("refs", contended))
		return nil
	}
	if err := g.store.Release(ctx, flowID); err != nil {
		g.logger.Error("release after contention failed", slog.String("flow_id", flowID), slog.Any("error", err))
	}
	return fmt.Errorf("%w: %v", ledger.ErrInputReserved, contended)
}

// KeyRef names a hold on something that is not a ledger output yet, such as a
// wallet id about to be created.
func KeyRef(key string) ledger.StateRef {
	return ledger.StateRef{TxID: "key:" + key, Index: -1}
}

// Claim holds key exclusively for flowID whatever the guard's policy. It
// reports false when another flow already holds key.
func (g *Guard) Claim(ctx context.Context, flowID, key string) (bool, error) {
	contended, err := g.store.Reserve(ctx, flowID, []ledger.StateRef{KeyRef(key)})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return len(contended) == 0, nil
}

// Release drops flowID's holds, logging failures.
func (g *Guard) Release(ctx context.Context, flowID string) {
	if err := g.store.Release(ctx, flowID); err != nil {
		g.logger.Error("release reservations failed", slog.String("flow_id", flowID), slog.Any("error", err))
	}
}
