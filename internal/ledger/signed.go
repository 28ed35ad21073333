package ledger

import (
	"fmt"

	"github.com/congo-pay/custody/internal/identity"
)

// Signature is a party's signature over a transition id.
type Signature struct {
	By    identity.Party `json:"by"`
	Bytes []byte         `json:"bytes"`
}

// SignedTransition is a transition plus the signatures collected so far.
type SignedTransition struct {
	ID              string      `json:"id"`
	Tx              Transition  `json:"tx"`
	Signatures      []Signature `json:"signatures"`
	NotarySignature *Signature  `json:"notary_signature,omitempty"`
}

// NewSignedTransition fixes the transition id. No signatures are attached.
func NewSignedTransition(tx Transition) (SignedTransition, error) {
	id, err := tx.ID()
	if err != nil {
		return SignedTransition{}, err
	}
	return SignedTransition{ID: id, Tx: tx}, nil
}

// SignWith returns the signature signer produces over the transition id.
func (s SignedTransition) SignWith(signer identity.Signer) Signature {
	return Signature{By: signer.Party(), Bytes: signer.Sign([]byte(s.ID))}
}

// WithSignature returns a copy carrying sig after checking it belongs to a required signer.
func (s SignedTransition) WithSignature(sig Signature) (SignedTransition, error) {
	if !identity.Contains(s.Tx.Command.Signers, sig.By) {
		return SignedTransition{}, fmt.Errorf("%w: %s is not a required signer", ErrUnauthorizedSigner, sig.By)
	}
	if !identity.Verify(sig.By, []byte(s.ID), sig.Bytes) {
		return SignedTransition{}, fmt.Errorf("%w: invalid signature from %s", ErrUnauthorizedSigner, sig.By)
	}
	if s.SignedBy(sig.By) {
		return s, nil
	}
	out := s
	out.Signatures = append(append([]Signature(nil), s.Signatures...), sig)
	return out, nil
}

// SignedBy reports whether p has already signed.
func (s SignedTransition) SignedBy(p identity.Party) bool {
	for _, sig := range s.Signatures {
		if sig.By.Equal(p) {
			return true
		}
	}
	return false
}

// Missing lists required signers that have not signed yet.
func (s SignedTransition) Missing() []identity.Party {
	var missing []identity.Party
	for _, p := range identity.Distinct(s.Tx.Command.Signers...) {
		if !s.SignedBy(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// CheckIntegrity recomputes the id and verifies every attached signature.
func (s SignedTransition) CheckIntegrity() error {
	id, err := s.Tx.ID()
	if err != nil {
		return err
	}
	if id != s.ID {
		return fmt.Errorf("%w: transition id %s does not match content %s", ErrInvalidRequest, s.ID, id)
	}
	for _, sig := range s.Signatures {
		if !identity.Contains(s.Tx.Command.Signers, sig.By) {
			return fmt.Errorf("%w: %s is not a required signer", ErrUnauthorizedSigner, sig.By)
		}
		if !identity.Verify(sig.By, []byte(s.ID), sig.Bytes) {
			return fmt.Errorf("%w: invalid signature from %s", ErrUnauthorizedSigner, sig.By)
		}
	}
	return nil
}

// VerifyRequiredSignatures checks integrity and that every required signer signed.
func (s SignedTransition) VerifyRequiredSignatures() error {
	if err := s.CheckIntegrity(); err != nil {
		return err
	}
	if missing := s.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing signatures from %v", ErrUnauthorizedSigner, missing)
	}
	return nil
}

// VerifyNotarized checks the notary signature against the transition's notary.
func (s SignedTransition) VerifyNotarized(notary identity.Party) error {
	if !s.Tx.Notary.Equal(notary) {
		return fmt.Errorf("%w: unexpected notary %s", ErrInvalidRequest, s.Tx.Notary)
	}
	if s.NotarySignature == nil {
		return fmt.Errorf("%w: transition %s is not notarized", ErrInvalidRequest, s.ID)
	}
	if !s.NotarySignature.By.Equal(notary) || !identity.Verify(notary, []byte(s.ID), s.NotarySignature.Bytes) {
		return fmt.Errorf("%w: invalid notary signature on %s", ErrInvalidRequest, s.ID)
	}
	return nil
}

// Outputs returns the produced records with the references they receive on commit.
func (s SignedTransition) Outputs() []StateAndRef {
	out := make([]StateAndRef, 0, len(s.Tx.Outputs))
	for i, st := range s.Tx.Outputs {
		out = append(out, StateAndRef{Ref: StateRef{TxID: s.ID, Index: i}, State: st})
	}
	return out
}
