package chain

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vultisig/xmr-bridge/internal/signing"
)

// Mint is one authorised mint, ready for the bridge contract.
type Mint struct {
	Recipient  string
	Amount     uint64
	DepositID  [32]byte
	Commitment [32]byte
	Receipt    []byte
	Signature  signing.Signature
}

// Submitter sends a mint to the destination chain and returns the transaction hash.
type Submitter interface {
	Submit(ctx context.Context, mint Mint) (string, error)
}

// Commitment binds the deposit's hidden fields: SHA256(txid || tx_key || recipient).
func Commitment(txID, txKey, recipient string) [32]byte {
	h := sha256.New()
	h.Write([]byte(txID))
	h.Write([]byte(txKey))
	h.Write([]byte(recipient))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (m *Mint) validate() error {
	if !common.IsHexAddress(m.Recipient) {
		return fmt.Errorf("invalid recipient %q", m.Recipient)
	}
	if m.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	if len(m.Signature.R) != 32 || len(m.Signature.S) != 32 {
		return fmt.Errorf("signature is not combined")
	}
	if m.Signature.V != 27 && m.Signature.V != 28 {
		return fmt.Errorf("invalid signature v %d", m.Signature.V)
	}
	return nil
}

func (m *Mint) callArgs() []any {
	var r, s [32]byte
	copy(r[:], m.Signature.R)
	copy(s[:], m.Signature.S)
	return []any{
		common.HexToAddress(m.Recipient),
		new(big.Int).SetUint64(m.Amount),
		m.DepositID,
		m.Commitment,
		m.Receipt,
		m.Signature.V,
		r,
		s,
	}
}

// callHash identifies a mint call without sending it.
func callHash(data []byte) string {
	return crypto.Keccak256Hash(data).Hex()
}
