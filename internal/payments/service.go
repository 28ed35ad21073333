package payments

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

// Flows is the part of a party's flow service used for payments.
type Flows interface {
	IssueFunds(ctx context.Context, req flow.IssueFundsRequest) (flow.Committed, error)
	TransferFunds(ctx context.Context, req flow.TransferFundsRequest) (flow.Committed, error)
}

// Lookup returns the flows of a hosted party.
type Lookup func(party string) (Flows, error)

// Service turns payment requests into issuance and transfer flows.
type Service struct {
	lookup Lookup
	now    func() time.Time
}

// NewService constructs a payment service.
func NewService(lookup Lookup) *Service {
	return &Service{lookup: lookup, now: time.Now}
}

// IssueInput captures an issuance into a gateway wallet.
type IssueInput struct {
	WalletID   string
	Amount     string
	Currency   string
	ClientTxID string
}

// TransferInput captures the data needed to move funds between wallets.
type TransferInput struct {
	SenderWalletID    string
	RecipientWalletID string
	Recipient         string
	Amount            string
	Currency          string
	Type              string
	ClientTxID        string
}

// Result describes a committed payment.
type Result struct {
	FlowID        string    `json:"flow_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Issue credits a wallet with newly issued funds.
func (s *Service) Issue(ctx context.Context, party string, input IssueInput) (Result, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return Result{}, err
	}
	amount, err := parseAmount(input.Amount, input.Currency)
	if err != nil {
		return Result{}, err
	}

	res, err := flows.IssueFunds(withClientTxID(ctx, input.ClientTxID), flow.IssueFundsRequest{
		WalletID: strings.TrimSpace(input.WalletID),
		Amount:   amount,
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(res, amount), nil
}

// Transfer moves funds from one of party's wallets to another wallet.
// An empty recipient keeps the transfer on-us.
func (s *Service) Transfer(ctx context.Context, party string, input TransferInput) (Result, error) {
	flows, err := s.lookup(party)
	if err != nil {
		return Result{}, err
	}
	amount, err := parseAmount(input.Amount, input.Currency)
	if err != nil {
		return Result{}, err
	}
	kind := state.TransferType(strings.ToUpper(strings.TrimSpace(input.Type)))
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: unknown transfer type %q", ledger.ErrInvalidRequest, input.Type)
	}

	res, err := flows.TransferFunds(withClientTxID(ctx, input.ClientTxID), flow.TransferFundsRequest{
		SenderWalletID:    strings.TrimSpace(input.SenderWalletID),
		RecipientWalletID: strings.TrimSpace(input.RecipientWalletID),
		Recipient:         strings.TrimSpace(input.Recipient),
		Amount:            amount,
		Type:              kind,
	})
	if err != nil {
		return Result{}, err
	}
	return s.result(res, amount), nil
}

func (s *Service) result(res flow.Committed, amount money.Amount) Result {
	return Result{
		FlowID:        res.FlowID,
		TransactionID: res.Tx.ID,
		Amount:        amount.String(),
		CompletedAt:   s.now().UTC(),
	}
}

func parseAmount(value, currency string) (money.Amount, error) {
	amount, err := money.Parse(value, currency)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: %v", ledger.ErrInvalidRequest, err)
	}
	if !amount.IsPositive() {
		return money.Amount{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidRequest)
	}
	if amount.Currency == "" {
		return money.Amount{}, fmt.Errorf("%w: currency is required", ledger.ErrInvalidRequest)
	}
	return amount, nil
}

// withClientTxID reuses a caller supplied id as the flow id so retries are traceable.
func withClientTxID(ctx context.Context, clientTxID string) context.Context {
	if id := strings.TrimSpace(clientTxID); id != "" {
		return flow.WithFlowID(ctx, id)
	}
	return ctx
}
