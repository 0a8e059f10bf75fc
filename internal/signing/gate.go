package signing

import (
	"strings"
	"time"

	"github.com/vultisig/xmr-bridge/internal/deposit"
)

// ValidatedDeposit is a deposit that passed the gate.
type ValidatedDeposit struct {
	TxID           string    `json:"tx_id"`
	TxKey          string    `json:"tx_key"`
	Amount         uint64    `json:"amount"`
	ExpectedAmount uint64    `json:"expected_amount"`
	Destination    string    `json:"destination"`
	Confirmations  uint64    `json:"confirmations"`
	InPool         bool      `json:"in_pool"`
	Timestamp      time.Time `json:"timestamp"`
}

// Gate checks a source report against the claim it is supposed to back.
type Gate struct {
	MinConfirmations uint64
	BridgeAddress    string
}

func (g Gate) Validate(claim deposit.Claim, check *deposit.Check) (*ValidatedDeposit, error) {
	if check.InPool {
		return nil, &DepositValidationError{Field: FieldInPool, Expected: false, Actual: true}
	}
	if check.Confirmations < g.MinConfirmations {
		return nil, &DepositValidationError{Field: FieldConfirmations, Expected: g.MinConfirmations, Actual: check.Confirmations}
	}
	if check.Received != claim.Amount {
		return nil, &DepositValidationError{Field: FieldAmount, Expected: claim.Amount, Actual: check.Received}
	}
	if strings.TrimSpace(check.Address) != g.BridgeAddress {
		return nil, &DepositValidationError{Field: FieldDestination, Expected: g.BridgeAddress, Actual: check.Address}
	}

	ts := check.CheckedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ValidatedDeposit{
		TxID:           claim.TxID,
		TxKey:          claim.TxKey,
		Amount:         check.Received,
		ExpectedAmount: claim.Amount,
		Destination:    check.Address,
		Confirmations:  check.Confirmations,
		InPool:         check.InPool,
		Timestamp:      ts,
	}, nil
}
