package deposit

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Claim asks the bridge to mint for a Monero transfer to the bridge address.
// Amounts are in atomic units (1 XMR = 1e12).
type Claim struct {
	ID          string `json:"id"`
	TxID        string `json:"tx_id"`
	TxKey       string `json:"tx_key"`
	Amount      uint64 `json:"amount"`
	Recipient   string `json:"recipient"`
	RequestedAt int64  `json:"requested_at"`
}

func NewClaim(txID, txKey string, amount uint64, recipient string, now time.Time) Claim {
	return Claim{
		ID:          uuid.New().String(),
		TxID:        txID,
		TxKey:       txKey,
		Amount:      amount,
		Recipient:   recipient,
		RequestedAt: now.Unix(),
	}
}

func (c *Claim) Validate() error {
	if c.TxID == "" {
		return errors.New("tx_id is required")
	}
	if c.TxKey == "" {
		return errors.New("tx_key is required")
	}
	if c.Amount == 0 {
		return errors.New("amount must be positive")
	}
	if !common.IsHexAddress(c.Recipient) {
		return fmt.Errorf("invalid recipient address: %q", c.Recipient)
	}
	if c.RequestedAt <= 0 {
		return errors.New("requested_at is required")
	}
	return nil
}

// OperationHash is SHA256(txid || be64(amount)), the idempotency key of the deposit.
func (c *Claim) OperationHash() [32]byte {
	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], c.Amount)
	h := sha256.New()
	h.Write([]byte(c.TxID))
	h.Write(amount[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (c *Claim) OperationHashHex() string {
	h := c.OperationHash()
	return hex.EncodeToString(h[:])
}

// Check is what the deposit source reports for one transfer.
type Check struct {
	TxID          string    `json:"tx_id"`
	TxKey         string    `json:"tx_key"`
	Address       string    `json:"address"`
	Received      uint64    `json:"received"`
	Confirmations uint64    `json:"confirmations"`
	InPool        bool      `json:"in_pool"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Source reports transfers to an address. Results are eventually consistent and
// must be re-polled rather than trusted on a single read.
type Source interface {
	CheckTransaction(ctx context.Context, txID, txKey, address string) (*Check, error)
}
