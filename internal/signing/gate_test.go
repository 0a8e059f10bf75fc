package signing

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/internal/deposit"
)

const (
	testRecipient = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
	bridgeAddress = "5bridgeAddress"
)

func TestGateValidate(t *testing.T) {
	gate := Gate{MinConfirmations: 10, BridgeAddress: bridgeAddress}
	claim := deposit.NewClaim("tx", "key", 1_000_000, testRecipient, time.Unix(100, 0))
	good := deposit.Check{
		TxID:          "tx",
		Address:       bridgeAddress,
		Received:      1_000_000,
		Confirmations: 10,
		CheckedAt:     time.Unix(200, 0),
	}

	tests := []struct {
		name    string
		mutate  func(c *deposit.Check)
		field   string
		pending bool
	}{
		{name: "exactly minimum confirmations", mutate: func(c *deposit.Check) {}},
		{name: "above minimum", mutate: func(c *deposit.Check) { c.Confirmations = 50 }},
		{name: "one below minimum", mutate: func(c *deposit.Check) { c.Confirmations = 9 }, field: FieldConfirmations, pending: true},
		{name: "in pool", mutate: func(c *deposit.Check) { c.InPool = true; c.Confirmations = 0 }, field: FieldInPool, pending: true},
		{name: "one unit short", mutate: func(c *deposit.Check) { c.Received = 999_999 }, field: FieldAmount},
		{name: "one unit over", mutate: func(c *deposit.Check) { c.Received = 1_000_001 }, field: FieldAmount},
		{name: "other destination", mutate: func(c *deposit.Check) { c.Address = "5other" }, field: FieldDestination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := good
			tt.mutate(&check)
			validated, err := gate.Validate(claim, &check)
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, claim.Amount, validated.Amount)
				assert.Equal(t, claim.Amount, validated.ExpectedAmount)
				assert.Equal(t, bridgeAddress, validated.Destination)
				assert.Equal(t, check.CheckedAt, validated.Timestamp)
				return
			}
			var vErr *DepositValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, tt.pending, IsPending(err))
			assert.Nil(t, validated)
		})
	}
}

func TestNonce(t *testing.T) {
	want := sha256.Sum256([]byte("nonce_txkey"))
	assert.Equal(t, want, Nonce("tx", "key"))
	assert.NotEqual(t, Nonce("tx", "key"), Nonce("tx", "key2"))
}

func TestBuildMessage(t *testing.T) {
	opHash := sha256.Sum256([]byte("op"))
	nonce := Nonce("tx", "key")

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], 1700000000)
	want := crypto.Keccak256(append(append(opHash[:], ts[:]...), nonce[:]...))

	msg := BuildMessage(opHash, 1700000000, nonce)
	assert.Equal(t, want, msg)
	assert.Len(t, msg, 32)
	assert.NotEqual(t, msg, BuildMessage(opHash, 1700000001, nonce))
}

func TestNewRequestUsesClaimTimestamp(t *testing.T) {
	claim := deposit.NewClaim("tx", "key", 5, testRecipient, time.Unix(1234, 0))
	a := NewRequest(claim, &ValidatedDeposit{TxID: "tx", Timestamp: time.Unix(2000, 0)})
	b := NewRequest(claim, &ValidatedDeposit{TxID: "tx", Timestamp: time.Unix(3000, 0)})

	assert.Equal(t, int64(1234), a.Timestamp)
	assert.Equal(t, claim.OperationHash(), a.OperationHash)
	assert.Equal(t, claim.OperationHashHex(), a.OperationHashHex())
	assert.Equal(t, a.Message(), b.Message(), "validators observing the deposit at different times sign the same message")
}
