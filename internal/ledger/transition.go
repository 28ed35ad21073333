package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/state"
)

// StateRef points at one output of a committed transition: a specific version of a record.
type StateRef struct {
	TxID  string `json:"tx_id"`
	Index int    `json:"index"`
}

func (r StateRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// StateAndRef pairs a record with the reference of the version it is.
type StateAndRef struct {
	Ref   StateRef
	State state.State
}

type stateAndRefWire struct {
	Ref   StateRef       `json:"ref"`
	State state.Envelope `json:"state"`
}

func (s StateAndRef) MarshalJSON() ([]byte, error) {
	env, err := state.Seal(s.State)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stateAndRefWire{Ref: s.Ref, State: env})
}

func (s *StateAndRef) UnmarshalJSON(data []byte) error {
	var wire stateAndRefWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	st, err := wire.State.Open()
	if err != nil {
		return err
	}
	s.Ref, s.State = wire.Ref, st
	return nil
}

// Typed is a StateAndRef whose record has a known concrete type.
type Typed[T state.State] struct {
	Ref   StateRef
	State T
}

// Untyped converts back to a StateAndRef.
func (t Typed[T]) Untyped() StateAndRef {
	return StateAndRef{Ref: t.Ref, State: t.State}
}

// As narrows sr to T.
func As[T state.State](sr StateAndRef) (Typed[T], bool) {
	st, ok := sr.State.(T)
	if !ok {
		return Typed[T]{}, false
	}
	return Typed[T]{Ref: sr.Ref, State: st}, true
}

// CommandKind is the closed set of operations a transition can carry.
type CommandKind string

const (
	CreateWallet               CommandKind = "CREATE_WALLET"
	VerifyWallet               CommandKind = "VERIFY_WALLET"
	IssueFunds                 CommandKind = "ISSUE_FUNDS"
	TransferFunds              CommandKind = "TRANSFER_FUNDS"
	AddRecognisedIssuer        CommandKind = "ADD_RECOGNISED_ISSUER"
	ActivateRecognisedIssuer   CommandKind = "ACTIVATE_RECOGNISED_ISSUER"
	DeactivateRecognisedIssuer CommandKind = "DEACTIVATE_RECOGNISED_ISSUER"
)

// Command is the intent of a transition and the parties that must sign it.
type Command struct {
	Kind    CommandKind      `json:"kind"`
	Signers []identity.Party `json:"signers"`
}

// Transition is a candidate state change: consumed inputs, produced outputs and one command.
type Transition struct {
	Inputs    []StateAndRef
	Outputs   []state.State
	Command   Command
	Notary    identity.Party
	Salt      string
	CreatedAt time.Time
}

type transitionWire struct {
	Inputs    []StateAndRef    `json:"inputs"`
	Outputs   []state.Envelope `json:"outputs"`
	Command   Command          `json:"command"`
	Notary    identity.Party   `json:"notary"`
	Salt      string           `json:"salt"`
	CreatedAt time.Time        `json:"created_at"`
}

func (t Transition) MarshalJSON() ([]byte, error) {
	wire := transitionWire{
		Inputs:    t.Inputs,
		Outputs:   make([]state.Envelope, 0, len(t.Outputs)),
		Command:   t.Command,
		Notary:    t.Notary,
		Salt:      t.Salt,
		CreatedAt: t.CreatedAt,
	}
	if wire.Inputs == nil {
		wire.Inputs = []StateAndRef{}
	}
	for _, out := range t.Outputs {
		env, err := state.Seal(out)
		if err != nil {
			return nil, err
		}
		wire.Outputs = append(wire.Outputs, env)
	}
	return json.Marshal(wire)
}

func (t *Transition) UnmarshalJSON(data []byte) error {
	var wire transitionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	outputs := make([]state.State, 0, len(wire.Outputs))
	for _, env := range wire.Outputs {
		st, err := env.Open()
		if err != nil {
			return err
		}
		outputs = append(outputs, st)
	}
	*t = Transition{
		Inputs:    wire.Inputs,
		Outputs:   outputs,
		Command:   wire.Command,
		Notary:    wire.Notary,
		Salt:      wire.Salt,
		CreatedAt: wire.CreatedAt,
	}
	return nil
}

// ID is the hex blake2b-256 digest of the canonical encoding.
func (t Transition) ID() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode transition: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// InputRefs lists the references consumed by the transition.
func (t Transition) InputRefs() []StateRef {
	refs := make([]StateRef, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		refs = append(refs, in.Ref)
	}
	return refs
}

// Participants is the union of output participants in output order.
func (t Transition) Participants() []identity.Party {
	var all []identity.Party
	for _, out := range t.Outputs {
		all = append(all, out.Participants()...)
	}
	return identity.Distinct(all...)
}

// InputsOf returns the inputs holding records of type T.
func InputsOf[T state.State](t Transition) []Typed[T] {
	var out []Typed[T]
	for _, in := range t.Inputs {
		if typed, ok := As[T](in); ok {
			out = append(out, typed)
		}
	}
	return out
}

// OutputsOf returns the outputs of type T.
func OutputsOf[T state.State](t Transition) []T {
	var out []T
	for _, o := range t.Outputs {
		if typed, ok := o.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
