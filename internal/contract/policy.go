package contract

import "github.com/congo-pay/custody/internal/money"

// Policy holds the currency rules contracts are checked against.
type Policy struct {
	AllowedCurrencies map[string]bool
	// IssuanceCeilings is the largest single issuance, in minor units, per currency.
	IssuanceCeilings map[string]int64
}

// DefaultPolicy allows USD and NGN with ceilings of 100.00 USD and 50,000.00 NGN.
func DefaultPolicy() Policy {
	return Policy{
		AllowedCurrencies: map[string]bool{"USD": true, "NGN": true},
		IssuanceCeilings: map[string]int64{
			"USD": 100 * 100,
			"NGN": 50_000 * 100,
		},
	}
}

// Allowed reports whether currency may be held in a wallet.
func (p Policy) Allowed(currency string) bool {
	return p.AllowedCurrencies[money.NormalizeCurrency(currency)]
}

// Ceiling returns the issuance ceiling for currency.
func (p Policy) Ceiling(currency string) (int64, bool) {
	c, ok := p.IssuanceCeilings[money.NormalizeCurrency(currency)]
	return c, ok
}
