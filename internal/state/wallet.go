package state

import (
	"strconv"
	"time"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/money"
)

// Wallet holds a balance on behalf of its owner. IssuedBy is the issuer that
// created the wallet and co-controls it.
type Wallet struct {
	ID          LinearID       `json:"linear_id"`
	Owner       identity.Party `json:"owner"`
	IssuedBy    identity.Party `json:"issued_by"`
	Balance     money.Amount   `json:"balance"`
	Status      WalletStatus   `json:"status"`
	Type        WalletType     `json:"type"`
	Verified    bool           `json:"verified"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
}

// WalletSpec carries the fields chosen by the caller when creating a wallet.
type WalletSpec struct {
	WalletID string         `json:"wallet_id"`
	Owner    identity.Party `json:"owner"`
	Currency string         `json:"currency"`
	Status   WalletStatus   `json:"status"`
	Type     WalletType     `json:"type"`
}

// NewWallet creates the first version of a wallet: zero balance, unverified.
func NewWallet(spec WalletSpec, issuedBy identity.Party, now time.Time) Wallet {
	status := spec.Status
	if status == "" {
		status = WalletStatusActive
	}
	return Wallet{
		ID:          NewLinearID(spec.WalletID),
		Owner:       spec.Owner,
		IssuedBy:    issuedBy,
		Balance:     money.Zero(spec.Currency),
		Status:      status,
		Type:        spec.Type,
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func (w Wallet) Kind() Kind         { return KindWallet }
func (w Wallet) LinearID() LinearID { return w.ID }

func (w Wallet) Participants() []identity.Party {
	return participants(w.Owner, w.IssuedBy)
}

// WalletID is the caller supplied wallet identifier.
func (w Wallet) WalletID() string { return w.ID.ExternalID }

// Currency of the wallet balance.
func (w Wallet) Currency() string { return w.Balance.Currency }

// WithBalance returns the next version holding balance.
func (w Wallet) WithBalance(balance money.Amount, now time.Time) Wallet {
	next := w
	next.Balance = balance
	next.LastUpdated = now
	return next
}

// MarkVerified returns the next version with the verified flag set.
func (w Wallet) MarkVerified(now time.Time) Wallet {
	next := w
	next.Verified = true
	next.LastUpdated = now
	return next
}

// SameExceptBalance reports whether other differs from w only in balance quantity and update time.
func (w Wallet) SameExceptBalance(other Wallet) bool {
	return w.sameFrame(other) && w.Verified == other.Verified && w.Currency() == other.Currency()
}

// SameExceptVerified reports whether other differs from w only in the verified flag and update time.
func (w Wallet) SameExceptVerified(other Wallet) bool {
	return w.sameFrame(other) && w.Balance == other.Balance
}

func (w Wallet) sameFrame(other Wallet) bool {
	return w.ID == other.ID &&
		w.Owner.Equal(other.Owner) &&
		w.IssuedBy.Equal(other.IssuedBy) &&
		w.Status == other.Status &&
		w.Type == other.Type &&
		w.CreatedAt.Equal(other.CreatedAt)
}

func (w Wallet) Projection() Projection {
	return Projection{
		"wallet_id": w.WalletID(),
		"owner":     w.Owner.Name,
		"issued_by": w.IssuedBy.Name,
		"currency":  w.Currency(),
		"type":      string(w.Type),
		"status":    string(w.Status),
		"verified":  strconv.FormatBool(w.Verified),
	}
}
