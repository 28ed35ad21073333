package wallet

import (
	"time"

	"github.com/congo-pay/custody/internal/money"
	"github.com/congo-pay/custody/internal/state"
)

// Wallet is the API view of a wallet record.
type Wallet struct {
	ID        string             `json:"id"`
	Owner     string             `json:"owner"`
	IssuedBy  string             `json:"issued_by"`
	Type      state.WalletType   `json:"type"`
	Status    state.WalletStatus `json:"status"`
	Verified  bool               `json:"verified"`
	Balance   Balance            `json:"balance"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Balance renders an amount in major units alongside its minor-unit quantity.
type Balance struct {
	Amount   string `json:"amount"`
	Minor    int64  `json:"minor_units"`
	Currency string `json:"currency"`
}

func fromState(w state.Wallet) Wallet {
	return Wallet{
		ID:       w.WalletID(),
		Owner:    w.Owner.Name,
		IssuedBy: w.IssuedBy.Name,
		Type:     w.Type,
		Status:   w.Status,
		Verified: w.Verified,
		Balance: Balance{
			Amount:   w.Balance.Decimal().StringFixed(money.Exponent(w.Balance.Currency)),
			Minor:    w.Balance.Quantity,
			Currency: w.Balance.Currency,
		},
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.LastUpdated,
	}
}
