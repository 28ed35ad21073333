// Package issuers manages the recognised issuers a party accepts money from.
package issuers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

// Flows is the part of a party's flow service used for issuer recognition.
type Flows interface {
	AddRecognisedIssuer(ctx context.Context, issuerName, currency string) (flow.Committed, error)
	ActivateRecognisedIssuer(ctx context.Context, issuerName, currency string) (flow.Committed, error)
	DeactivateRecognisedIssuer(ctx context.Context, issuerName, currency string) (flow.Committed, error)
	ActivatedIssuer(ctx context.Context, currency string) (state.RecognisedIssuer, error)
	RecognisedIssuers(ctx context.Context) ([]state.RecognisedIssuer, error)
}

// Lookup returns the flows of a hosted party.
type Lookup func(party string) (Flows, error)

// Recognition is the API view of a recognised issuer record.
type Recognition struct {
	Issuer      string    `json:"issuer"`
	AddedBy     string    `json:"added_by"`
	Currency    string    `json:"currency"`
	Activated   bool      `json:"activated"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

func fromState(ri state.RecognisedIssuer) Recognition {
	return Recognition{
		Issuer:      ri.Issuer.Name,
		AddedBy:     ri.AddedBy.Name,
		Currency:    ri.Currency,
		Activated:   ri.Activated,
		CreatedAt:   ri.CreatedAt,
		LastUpdated: ri.LastUpdated,
	}
}

// Service exposes issuer recognition on behalf of hosted parties.
type Service struct {
	lookup Lookup
}

// NewService builds an issuer recognition service.
func NewService(lookup Lookup) *Service {
	return &Service{lookup: lookup}
}

// Add recognises issuer for currency.
func (s *Service) Add(ctx context.Context, party, issuer, currency string) (flow.Committed, error) {
	return s.change(ctx, party, issuer, currency, Flows.AddRecognisedIssuer)
}

// Activate makes issuer the active issuer for currency.
func (s *Service) Activate(ctx context.Context, party, issuer, currency string) (flow.Committed, error) {
	return s.change(ctx, party, issuer, currency, Flows.ActivateRecognisedIssuer)
}

// Deactivate stops accepting new money from issuer in currency.
func (s *Service) Deactivate(ctx context.Context, party, issuer, currency string) (flow.Committed, error) {
	return s.change(ctx, party, issuer, currency, Flows.DeactivateRecognisedIssuer)
}

func (s *Service) change(ctx context.Context, party, issuer, currency string, op func(Flows, context.Context, string, string) (flow.Committed, error)) (flow.Committed, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return flow.Committed{}, err
	}
	issuer = strings.TrimSpace(issuer)
	currency = money.NormalizeCurrency(currency)
	if issuer == "" || currency == "" {
		return flow.Committed{}, fmt.Errorf("%w: issuer and currency are required", ledger.ErrInvalidRequest)
	}
	return op(flows, ctx, issuer, currency)
}

// Activated returns the issuer currently activated for currency.
func (s *Service) Activated(ctx context.Context, party, currency string) (Recognition, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return Recognition{}, err
	}
	ri, err := flows.ActivatedIssuer(ctx, money.NormalizeCurrency(currency))
	if err != nil {
		return Recognition{}, err
	}
	return fromState(ri), nil
}

// List returns every recognition held by party.
func (s *Service) List(ctx context.Context, party string) ([]Recognition, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return nil, err
	}
	all, err := flows.RecognisedIssuers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Recognition, 0, len(all))
	for _, ri := range all {
		out = append(out, fromState(ri))
	}
	return out, nil
}
