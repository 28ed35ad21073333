// Package checkpoint persists the progress of in-flight flows so a restarted
// node can tell which transitions it was assembling, signing or finalizing.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

var (
	ErrNotFound          = errors.New("checkpoint: not found")
	ErrClosed            = errors.New("checkpoint: store is closed")
	ErrInvalidTransition = errors.New("checkpoint: invalid step transition")
)

// Step is the position of a flow in the transaction lifecycle.
type Step string

const (
	Built                          Step = "BUILT"
	AwaitingCounterpartyValidation Step = "AWAITING_COUNTERPARTY_VALIDATION"
	AwaitingCosignatures           Step = "AWAITING_COSIGNATURES"
	Signed                         Step = "SIGNED"
	AwaitingNotarization           Step = "AWAITING_NOTARIZATION"
	Committed                      Step = "COMMITTED"
	Rejected                       Step = "REJECTED"
	Aborted                        Step = "ABORTED"
)

var forward = map[Step][]Step{
	Built:                          {AwaitingCounterpartyValidation, AwaitingCosignatures, Signed},
	AwaitingCounterpartyValidation: {AwaitingCosignatures, Signed},
	AwaitingCosignatures:           {Signed},
	Signed:                         {AwaitingNotarization},
	AwaitingNotarization:           {Committed},
}

// Terminal reports whether no further step follows s.
func (s Step) Terminal() bool {
	return s == Committed || s == Rejected || s == Aborted
}

// CanAdvanceTo reports whether next may follow s. Any non-terminal step may end in
// Rejected or Aborted.
func (s Step) CanAdvanceTo(next Step) bool {
	if s.Terminal() {
		return false
	}
	if next == Rejected || next == Aborted {
		return true
	}
	for _, allowed := range forward[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Role is the side of a session a flow plays.
type Role string

const (
	Initiator Role = "initiator"
	Responder Role = "responder"
)

// Checkpoint is the durable record of one flow.
type Checkpoint struct {
	FlowID         string                   `json:"flow_id"`
	Protocol       string                   `json:"protocol"`
	Role           Role                     `json:"role"`
	// Assembler marks the party that submits the transition for notarization.
	Assembler      bool                     `json:"assembler,omitempty"`
	Step           Step                     `json:"step"`
	Tx             *ledger.SignedTransition `json:"tx,omitempty"`
	Counterparties []identity.Party         `json:"counterparties,omitempty"`
	Reserved       []ledger.StateRef        `json:"reserved,omitempty"`
	Error          string                   `json:"error,omitempty"`
	StartedAt      time.Time                `json:"started_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// Advance moves the checkpoint to next.
func (c *Checkpoint) Advance(next Step, now time.Time) error {
	if !c.Step.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Step, next)
	}
	c.Step = next
	c.UpdatedAt = now
	return nil
}

// Store persists checkpoints by flow id.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, flowID string) (Checkpoint, error)
	Delete(ctx context.Context, flowID string) error
	List(ctx context.Context) ([]Checkpoint, error)
}
