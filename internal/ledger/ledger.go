// Package ledger holds the transition model shared by every party: state
// references, commands, signed transitions and the error taxonomy surfaced to
// callers.
package ledger

import (
	"errors"
	"fmt"

	"github.com/congo-pay/custody/internal/money"
)

var (
	// ErrNotFound indicates a referenced record is absent from the local vault.
	ErrNotFound = errors.New("not found")

	// ErrContractViolation is matched by every *ContractViolation.
	ErrContractViolation = errors.New("contract violation")

	// ErrUnauthorizedSigner indicates the signer set does not satisfy the command.
	ErrUnauthorizedSigner = errors.New("unauthorized signer")

	// ErrCurrencyMismatch indicates two amounts or wallets disagree on currency.
	ErrCurrencyMismatch = money.ErrCurrencyMismatch

	// ErrUnacceptableCurrency indicates a requested amount is not denominated in the wallet currency.
	ErrUnacceptableCurrency = errors.New("unacceptable currency")

	// ErrInsufficientFunds occurs when a wallet or its tokens cannot cover an amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnrecognizedIssuer indicates the issuer is not recognised for the currency.
	ErrUnrecognizedIssuer = errors.New("unrecognized issuer")

	// ErrIssuerNotActivated indicates no activated recognised issuer exists for the currency.
	ErrIssuerNotActivated = errors.New("issuer not activated")

	// ErrDuplicateState indicates an attempt to create a record that already exists unconsumed.
	ErrDuplicateState = errors.New("duplicate state")

	ErrAlreadyActivated   = errors.New("already activated")
	ErrAlreadyDeactivated = errors.New("already deactivated")
	ErrAlreadyVerified    = errors.New("already verified")

	// ErrNotarizationConflict means another committed transition consumed one of the inputs first.
	ErrNotarizationConflict = errors.New("notarization conflict")

	// ErrInvalidRequest covers business parameters the local party refuses to act on.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInputReserved indicates an input is held by another in-flight transition.
	ErrInputReserved = errors.New("input reserved by another transition")
)

// ContractViolation reports the contract rule a transition failed.
type ContractViolation struct {
	Rule   string
	Detail string
	cause  error
}

// Violation builds a contract violation for rule.
func Violation(rule, format string, args ...any) *ContractViolation {
	return &ContractViolation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// SignerViolation builds a contract violation that also matches ErrUnauthorizedSigner.
func SignerViolation(rule, format string, args ...any) *ContractViolation {
	v := Violation(rule, format, args...)
	v.cause = ErrUnauthorizedSigner
	return v
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation [%s]: %s", e.Rule, e.Detail)
}

func (e *ContractViolation) Is(target error) bool {
	return target == ErrContractViolation || (e.cause != nil && target == e.cause)
}

// UnacceptableCurrencyError reports a requested amount in a currency the wallet does not hold.
// It matches both ErrUnacceptableCurrency and ErrCurrencyMismatch.
type UnacceptableCurrencyError struct {
	Requested string
	Wallet    string
}

func (e *UnacceptableCurrencyError) Error() string {
	return fmt.Sprintf("unacceptable currency %s for %s wallet", e.Requested, e.Wallet)
}

func (e *UnacceptableCurrencyError) Is(target error) bool {
	return target == ErrUnacceptableCurrency || target == ErrCurrencyMismatch
}

var codes = []struct {
	code string
	err  error
}{
	{"not_found", ErrNotFound},
	{"unauthorized_signer", ErrUnauthorizedSigner},
	{"contract_violation", ErrContractViolation},
	{"unacceptable_currency", ErrUnacceptableCurrency},
	{"currency_mismatch", ErrCurrencyMismatch},
	{"insufficient_funds", ErrInsufficientFunds},
	{"unrecognized_issuer", ErrUnrecognizedIssuer},
	{"issuer_not_activated", ErrIssuerNotActivated},
	{"duplicate_state", ErrDuplicateState},
	{"already_activated", ErrAlreadyActivated},
	{"already_deactivated", ErrAlreadyDeactivated},
	{"already_verified", ErrAlreadyVerified},
	{"notarization_conflict", ErrNotarizationConflict},
	{"input_reserved", ErrInputReserved},
	{"invalid_request", ErrInvalidRequest},
}

// Code returns the wire code of the first taxonomy error err matches, or "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// FromCode returns the taxonomy error for a wire code, or nil if the code is unknown.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
