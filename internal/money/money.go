package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInvalidAmount indicates an amount string could not be represented in minor units.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOverflow is returned when a result does not fit in int64 minor units.
	ErrOverflow = errors.New("amount overflow")
)

// minorUnits lists currencies whose exponent differs from the default of two.
var minorUnits = map[string]int32{
	"JPY": 0,
	"XAF": 0,
}

// Amount is a signed quantity of minor units in a single currency.
type Amount struct {
	Quantity int64  `json:"quantity"`
	Currency string `json:"currency"`
}

// New builds an amount from a quantity of minor units.
func New(quantity int64, currency string) Amount {
	return Amount{Quantity: quantity, Currency: NormalizeCurrency(currency)}
}

// Zero returns the zero amount for a currency.
func Zero(currency string) Amount {
	return New(0, currency)
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exponent reports the number of minor-unit digits used by a currency.
func Exponent(currency string) int32 {
	if exp, ok := minorUnits[NormalizeCurrency(currency)]; ok {
		return exp
	}
	return 2
}

// Parse converts a major-unit decimal string ("12.50") into an Amount.
func Parse(value, currency string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	minor := d.Shift(Exponent(currency))
	if !minor.IsInteger() {
		return Amount{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, value, Exponent(currency))
	}
	return New(minor.IntPart(), currency), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.Quantity, -Exponent(a.Currency))
}

// String renders the amount as "12.50 USD".
func (a Amount) String() string {
	return a.Decimal().StringFixed(Exponent(a.Currency)) + " " + a.Currency
}

// SameCurrency reports whether both amounts share a currency.
func (a Amount) SameCurrency(other Amount) bool {
	return a.Currency == other.Currency
}

// Plus adds two amounts of the same currency.
func (a Amount) Plus(other Amount) (Amount, error) {
	if !a.SameCurrency(other) {
		return Amount{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, other.Currency)
	}
	sum := a.Quantity + other.Quantity
	if (other.Quantity > 0 && sum < a.Quantity) || (other.Quantity < 0 && sum > a.Quantity) {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, other)
	}
	return Amount{Quantity: sum, Currency: a.Currency}, nil
}

// Minus subtracts other from a.
func (a Amount) Minus(other Amount) (Amount, error) {
	if !a.SameCurrency(other) {
		return Amount{}, fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, a.Currency, other.Currency)
	}
	diff := a.Quantity - other.Quantity
	if (other.Quantity > 0 && diff > a.Quantity) || (other.Quantity < 0 && diff < a.Quantity) {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrOverflow, a, other)
	}
	return Amount{Quantity: diff, Currency: a.Currency}, nil
}

// Negate flips the sign of the quantity.
func (a Amount) Negate() Amount {
	return Amount{Quantity: -a.Quantity, Currency: a.Currency}
}

func (a Amount) IsZero() bool     { return a.Quantity == 0 }
func (a Amount) IsPositive() bool { return a.Quantity > 0 }
func (a Amount) IsNegative() bool { return a.Quantity < 0 }

// Sum adds amounts that must all share currency. An empty slice sums to zero in currency.
func Sum(currency string, amounts ...Amount) (Amount, error) {
	total := Zero(currency)
	for _, amt := range amounts {
		next, err := total.Plus(amt)
		if err != nil {
			return Amount{}, err
		}
		total = next
	}
	return total, nil
}
