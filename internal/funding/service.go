package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/flow"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

// StatusCommitted is reported once the funding transition is notarized and recorded.
const StatusCommitted = "COMMITTED"

// Flows is the part of a party's flow service used for funding.
type Flows interface {
	FundWallet(ctx context.Context, req flow.FundWalletRequest) (flow.Committed, error)
	Wallet(ctx context.Context, walletID string) (state.Wallet, error)
}

// Lookup returns the flows of a hosted party.
type Lookup func(party string) (Flows, error)

// Service moves gateway funds back to the activated issuer of the wallet currency.
type Service struct {
	lookup Lookup
}

// NewService prepares a funding service.
func NewService(lookup Lookup) *Service {
	return &Service{lookup: lookup}
}

// FundInput captures the required data for a wallet funding.
type FundInput struct {
	WalletID            string
	Amount              string
	RecipientWalletID   string
	RecipientWalletType string
	ClientTxID          string
}

// FundingResult represents the domain outcome of a funding.
type FundingResult struct {
	FlowID        string
	TransactionID string
	Status        string
	Issuer        string
	WalletBalance money.Amount
	CompletedAt   time.Time
}

// Fund sends amount from the party's wallet to a wallet of the activated issuer.
func (s *Service) Fund(ctx context.Context, party string, input FundInput) (FundingResult, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return FundingResult{}, err
	}
	walletID := strings.TrimSpace(input.WalletID)
	sender, err := flows.Wallet(ctx, walletID)
	if err != nil {
		return FundingResult{}, err
	}

	amount, err := money.Parse(input.Amount, sender.Currency())
	if err != nil {
		return FundingResult{}, fmt.Errorf("%w: %v", ledger.ErrInvalidRequest, err)
	}
	if !amount.IsPositive() {
		return FundingResult{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidRequest)
	}
	var kind state.WalletType
	if t := strings.ToUpper(strings.TrimSpace(input.RecipientWalletType)); t != "" {
		kind = state.WalletType(t)
		if !kind.Valid() {
			return FundingResult{}, fmt.Errorf("%w: unknown wallet type %q", ledger.ErrInvalidRequest, input.RecipientWalletType)
		}
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	res, err := flows.FundWallet(flow.WithFlowID(ctx, input.ClientTxID), flow.FundWalletRequest{
		SenderWalletID:      walletID,
		RecipientWalletID:   strings.TrimSpace(input.RecipientWalletID),
		RecipientWalletType: kind,
		Amount:              amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	result := FundingResult{
		FlowID:        res.FlowID,
		TransactionID: res.Tx.ID,
		Status:        StatusCommitted,
		CompletedAt:   time.Now().UTC(),
	}
	for _, out := range res.Tx.Outputs() {
		w, ok := ledger.As[state.Wallet](out)
		if !ok {
			continue
		}
		if w.State.WalletID() == walletID {
			result.WalletBalance = w.State.Balance
		} else {
			result.Issuer = w.State.Owner.Name
		}
	}
	return result, nil
}
