package signing

import (
	"errors"
	"fmt"
)

var (
	ErrRecoveryIDNotFound   = errors.New("signature recovery id not found")
	ErrInsufficientPartials = errors.New("insufficient partial signatures")
)

const (
	FieldConfirmations = "confirmations"
	FieldInPool        = "in_pool"
	FieldAmount        = "amount"
	FieldDestination   = "destination"
)

// DepositValidationError names the deposit field that failed the gate.
type DepositValidationError struct {
	Field    string
	Expected any
	Actual   any
}

func (e *DepositValidationError) Error() string {
	return fmt.Sprintf("deposit validation failed on %s: expected %v, got %v", e.Field, e.Expected, e.Actual)
}

// Pending reports whether the deposit may still pass once the chain catches up.
func (e *DepositValidationError) Pending() bool {
	return e.Field == FieldConfirmations || e.Field == FieldInPool
}

// IsPending reports whether err is a deposit shortfall worth polling again.
func IsPending(err error) bool {
	var dErr *DepositValidationError
	return errors.As(err, &dErr) && dErr.Pending()
}
