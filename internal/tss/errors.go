package tss

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrEmptyShareSet         = errors.New("empty share set")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInconsistentAddresses = errors.New("inconsistent joint addresses")
	ErrInvalidScalar         = errors.New("invalid scalar encoding")
	ErrInvalidParameters     = errors.New("invalid threshold parameters")
)

// ShareLabel is the canonical name of a validator's share.
func ShareLabel(validatorIndex int) string {
	return fmt.Sprintf("validator_%d", validatorIndex)
}
