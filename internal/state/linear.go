// Package state defines the linear ledger records exchanged between parties.
//
// A record is never mutated in place. Constructors create the first version
// of a record with a fresh LinearID; the With*/Mark* methods return the next
// version, which shares the LinearID and supersedes the version it was derived
// from once a transition consuming it commits.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/identity"
)

// Kind names a record type on the wire and in the vault index.
type Kind string

const (
	KindWallet           Kind = "wallet"
	KindIssuance         Kind = "issuance"
	KindTransferReceipt  Kind = "transfer_receipt"
	KindRecognisedIssuer Kind = "recognised_issuer"
	KindMoney            Kind = "money"
)

// LinearID is the stable identity shared by every version of a record.
type LinearID struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id,omitempty"`
}

// NewLinearID mints a fresh identifier, optionally carrying a caller supplied external id.
func NewLinearID(externalID string) LinearID {
	return LinearID{ID: uuid.New(), ExternalID: externalID}
}

func (l LinearID) String() string {
	if l.ExternalID == "" {
		return l.ID.String()
	}
	return l.ExternalID + "_" + l.ID.String()
}

// State is implemented by every ledger record.
type State interface {
	Kind() Kind
	LinearID() LinearID
	Participants() []identity.Party
}

// Projection is the flat set of indexed fields a record exposes to the vault.
type Projection map[string]string

// Queryable is implemented by records that can be looked up by field.
type Queryable interface {
	Projection() Projection
}

// Envelope carries a record of any kind on the wire.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Seal wraps a record in an envelope.
func Seal(s State) (Envelope, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", s.Kind(), err)
	}
	return Envelope{Kind: s.Kind(), Data: data}, nil
}

// Open decodes the record held by the envelope.
func (e Envelope) Open() (State, error) {
	switch e.Kind {
	case KindWallet:
		return decode[Wallet](e)
	case KindIssuance:
		return decode[Issuance](e)
	case KindTransferReceipt:
		return decode[TransferReceipt](e)
	case KindRecognisedIssuer:
		return decode[RecognisedIssuer](e)
	case KindMoney:
		return decode[Money](e)
	default:
		return nil, fmt.Errorf("unknown state kind %q", e.Kind)
	}
}

func decode[T State](e Envelope) (State, error) {
	var out T
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Kind, err)
	}
	return out, nil
}

func participants(parties ...identity.Party) []identity.Party {
	return identity.Distinct(parties...)
}
