package signing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vultisig/xmr-bridge/internal/deposit"
)

// MessageVersion identifies the layout hashed by BuildMessage. Bump it on any change.
const MessageVersion = 1

// Nonce is SHA256("nonce_" || txid || tx_key). Every validator derives the same value.
func Nonce(txID, txKey string) [32]byte {
	h := sha256.New()
	h.Write([]byte("nonce_"))
	h.Write([]byte(txID))
	h.Write([]byte(txKey))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BuildMessage returns Keccak256(operationHash || be64(timestamp) || nonce).
func BuildMessage(operationHash [32]byte, timestamp int64, nonce [32]byte) []byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp))
	return crypto.Keccak256(operationHash[:], ts[:], nonce[:])
}

// Request is one deposit ready for threshold signing.
type Request struct {
	Claim         deposit.Claim
	OperationHash [32]byte
	Timestamp     int64
	Nonce         [32]byte
	Deposit       *ValidatedDeposit
}

// NewRequest binds a validated deposit to its claim. The timestamp is the claim's,
// so every validator signs the same message.
func NewRequest(claim deposit.Claim, validated *ValidatedDeposit) *Request {
	return &Request{
		Claim:         claim,
		OperationHash: claim.OperationHash(),
		Timestamp:     claim.RequestedAt,
		Nonce:         Nonce(claim.TxID, claim.TxKey),
		Deposit:       validated,
	}
}

func (r *Request) OperationHashHex() string {
	return hex.EncodeToString(r.OperationHash[:])
}

func (r *Request) Message() []byte {
	return BuildMessage(r.OperationHash, r.Timestamp, r.Nonce)
}
