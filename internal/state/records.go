package state

import (
	"strconv"
	"time"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/money"
)

// Issuance records money created by an issuer into a recipient's wallet.
type Issuance struct {
	ID        LinearID       `json:"linear_id"`
	Issuer    identity.Party `json:"issuer"`
	Recipient identity.Party `json:"recipient"`
	Amount    money.Amount   `json:"amount"`
	Status    RecordStatus   `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewIssuance creates an issuance record.
func NewIssuance(issuer, recipient identity.Party, amount money.Amount, now time.Time) Issuance {
	return Issuance{
		ID:        NewLinearID(""),
		Issuer:    issuer,
		Recipient: recipient,
		Amount:    amount,
		Status:    StatusCompleted,
		CreatedAt: now,
	}
}

func (i Issuance) Kind() Kind         { return KindIssuance }
func (i Issuance) LinearID() LinearID { return i.ID }

func (i Issuance) Participants() []identity.Party {
	return participants(i.Issuer, i.Recipient)
}

func (i Issuance) Projection() Projection {
	return Projection{
		"issuer":    i.Issuer.Name,
		"recipient": i.Recipient.Name,
		"currency":  i.Amount.Currency,
	}
}

// TransferReceipt is the immutable record of one transfer.
type TransferReceipt struct {
	ID                LinearID       `json:"linear_id"`
	Sender            identity.Party `json:"sender"`
	Recipient         identity.Party `json:"recipient"`
	SenderWalletID    string         `json:"sender_wallet_id"`
	RecipientWalletID string         `json:"recipient_wallet_id"`
	Amount            money.Amount   `json:"amount"`
	Type              TransferType   `json:"type"`
	Status            RecordStatus   `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
}

// NewTransferReceipt creates a receipt for a transfer between two wallets.
func NewTransferReceipt(sender, recipient Wallet, amount money.Amount, kind TransferType, now time.Time) TransferReceipt {
	return TransferReceipt{
		ID:                NewLinearID(""),
		Sender:            sender.Owner,
		Recipient:         recipient.Owner,
		SenderWalletID:    sender.WalletID(),
		RecipientWalletID: recipient.WalletID(),
		Amount:            amount,
		Type:              kind,
		Status:            StatusCompleted,
		CreatedAt:         now,
	}
}

func (r TransferReceipt) Kind() Kind         { return KindTransferReceipt }
func (r TransferReceipt) LinearID() LinearID { return r.ID }

func (r TransferReceipt) Participants() []identity.Party {
	return participants(r.Sender, r.Recipient)
}

func (r TransferReceipt) Projection() Projection {
	return Projection{
		"sender":              r.Sender.Name,
		"recipient":           r.Recipient.Name,
		"sender_wallet_id":    r.SenderWalletID,
		"recipient_wallet_id": r.RecipientWalletID,
		"type":                string(r.Type),
	}
}

// RecognisedIssuer marks an issuer trusted by a gateway for one currency.
type RecognisedIssuer struct {
	ID          LinearID       `json:"linear_id"`
	Issuer      identity.Party `json:"issuer"`
	AddedBy     identity.Party `json:"added_by"`
	Currency    string         `json:"currency"`
	Activated   bool           `json:"activated"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
}

// NewRecognisedIssuer creates an activated recognition record.
func NewRecognisedIssuer(issuer, addedBy identity.Party, currency string, now time.Time) RecognisedIssuer {
	currency = money.NormalizeCurrency(currency)
	return RecognisedIssuer{
		ID:          NewLinearID(issuer.Name + ":" + currency),
		Issuer:      issuer,
		AddedBy:     addedBy,
		Currency:    currency,
		Activated:   true,
		CreatedAt:   now,
		LastUpdated: now,
	}
}

func (r RecognisedIssuer) Kind() Kind         { return KindRecognisedIssuer }
func (r RecognisedIssuer) LinearID() LinearID { return r.ID }

func (r RecognisedIssuer) Participants() []identity.Party {
	return participants(r.AddedBy)
}

// WithActivation returns the next version with the activated flag set to activated.
func (r RecognisedIssuer) WithActivation(activated bool, now time.Time) RecognisedIssuer {
	next := r
	next.Activated = activated
	next.LastUpdated = now
	return next
}

// SameExceptActivation reports whether other differs from r only in activation and update time.
func (r RecognisedIssuer) SameExceptActivation(other RecognisedIssuer) bool {
	return r.ID == other.ID &&
		r.Issuer.Equal(other.Issuer) &&
		r.AddedBy.Equal(other.AddedBy) &&
		r.Currency == other.Currency &&
		r.CreatedAt.Equal(other.CreatedAt)
}

func (r RecognisedIssuer) Projection() Projection {
	return Projection{
		"issuer":    r.Issuer.Name,
		"added_by":  r.AddedBy.Name,
		"currency":  r.Currency,
		"activated": strconv.FormatBool(r.Activated),
	}
}

// Money is a token of value created by an issuer and held by an owner.
type Money struct {
	ID     LinearID       `json:"linear_id"`
	Issuer identity.Party `json:"issuer"`
	Owner  identity.Party `json:"owner"`
	Amount money.Amount   `json:"amount"`
}

// NewMoney creates a token.
func NewMoney(issuer, owner identity.Party, amount money.Amount) Money {
	return Money{ID: NewLinearID(""), Issuer: issuer, Owner: owner, Amount: amount}
}

func (m Money) Kind() Kind         { return KindMoney }
func (m Money) LinearID() LinearID { return m.ID }

func (m Money) Participants() []identity.Party {
	return participants(m.Owner)
}

func (m Money) Projection() Projection {
	return Projection{
		"issuer":   m.Issuer.Name,
		"owner":    m.Owner.Name,
		"currency": m.Amount.Currency,
	}
}
