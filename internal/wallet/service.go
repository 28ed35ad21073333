package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/state"
)

// Flows is the part of a party's flow service used for wallets.
type Flows interface {
	CreateWallet(ctx context.Context, req flow.CreateWalletRequest) (flow.Committed, error)
	VerifyWallet(ctx context.Context, walletID string) (flow.Committed, error)
	Wallet(ctx context.Context, walletID string) (state.Wallet, error)
}

// Lookup returns the flows of a hosted party.
type Lookup func(party string) (Flows, error)

// Service exposes wallet operations on behalf of hosted parties.
type Service struct {
	lookup Lookup
}

// NewService builds a wallet service instance.
func NewService(lookup Lookup) *Service {
	return &Service{lookup: lookup}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	WalletID string
	Owner    string
	Currency string
	Type     string
	Status   string
}

// Create issues a wallet from party. Gateway-owned wallets are co-created with their owner.
func (s *Service) Create(ctx context.Context, party string, input CreateInput) (flow.Committed, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return flow.Committed{}, err
	}

	walletType := state.WalletType(strings.ToUpper(strings.TrimSpace(input.Type)))
	if !walletType.Valid() {
		return flow.Committed{}, fmt.Errorf("%w: unknown wallet type %q", ledger.ErrInvalidRequest, input.Type)
	}
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		owner = party
	}

	return flows.CreateWallet(ctx, flow.CreateWalletRequest{
		WalletID: strings.TrimSpace(input.WalletID),
		Owner:    owner,
		Currency: input.Currency,
		Type:     walletType,
		Status:   state.WalletStatus(strings.ToUpper(strings.TrimSpace(input.Status))),
	})
}

// Verify marks a wallet issued by party as verified.
func (s *Service) Verify(ctx context.Context, party, walletID string) (flow.Committed, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return flow.Committed{}, err
	}
	return flows.VerifyWallet(ctx, walletID)
}

// Get returns a wallet as party currently knows it.
func (s *Service) Get(ctx context.Context, party, walletID string) (Wallet, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return Wallet{}, err
	}
	w, err := flows.Wallet(ctx, walletID)
	if err != nil {
		return Wallet{}, err
	}
	return fromState(w), nil
}
