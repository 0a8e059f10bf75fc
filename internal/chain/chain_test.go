package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/internal/signing"
)

const (
	testContract  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testRecipient = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
	// well-known development key
	testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

type fakeClient struct {
	nonce   uint64
	sendErr error
	sent    []*types.Transaction
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func testMint() Mint {
	r := make([]byte, 32)
	s := make([]byte, 32)
	r[31], s[31] = 1, 2
	return Mint{
		Recipient:  testRecipient,
		Amount:     1_000_000,
		DepositID:  [32]byte{0xaa},
		Commitment: Commitment("tx", "key", testRecipient),
		Receipt:    []byte{0xde, 0xad},
		Signature:  signing.Signature{R: r, S: s, V: 28},
	}
}

func TestEthereumSubmitter(t *testing.T) {
	client := &fakeClient{nonce: 7}
	sub, err := NewEthereumSubmitter(EthereumOptions{
		Client:     client,
		Contract:   testContract,
		PrivateKey: "0x" + testKey,
		ChainID:    big.NewInt(11155111),
	})
	require.NoError(t, err)

	mint := testMint()
	hash, err := sub.Submit(context.Background(), mint)
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(DefaultGasLimit), tx.Gas())
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), from)

	parsed, err := parseBridgeABI()
	require.NoError(t, err)
	method := parsed.Methods[mintMethod]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 8)
	assert.Equal(t, common.HexToAddress(testRecipient), args[0])
	assert.Equal(t, big.NewInt(1_000_000), args[1])
	assert.Equal(t, mint.DepositID, args[2])
	assert.Equal(t, mint.Commitment, args[3])
	assert.Equal(t, mint.Receipt, args[4])
	assert.Equal(t, uint8(28), args[5])
}

func TestEthereumSubmitterErrors(t *testing.T) {
	_, err := NewEthereumSubmitter(EthereumOptions{Client: &fakeClient{}, Contract: "nope", PrivateKey: testKey, ChainID: big.NewInt(1)})
	assert.Error(t, err)
	_, err = NewEthereumSubmitter(EthereumOptions{Client: &fakeClient{}, Contract: testContract, PrivateKey: "zz", ChainID: big.NewInt(1)})
	assert.Error(t, err)
	_, err = NewEthereumSubmitter(EthereumOptions{Client: &fakeClient{}, Contract: testContract, PrivateKey: testKey})
	assert.Error(t, err)

	sendErr := errors.New("nonce too low")
	sub, err := NewEthereumSubmitter(EthereumOptions{
		Client:     &fakeClient{sendErr: sendErr},
		Contract:   testContract,
		PrivateKey: testKey,
		ChainID:    big.NewInt(1),
	})
	require.NoError(t, err)
	_, err = sub.Submit(context.Background(), testMint())
	assert.ErrorIs(t, err, sendErr)

	unsigned := testMint()
	unsigned.Signature.V = 0
	_, err = sub.Submit(context.Background(), unsigned)
	assert.Error(t, err)
}

func TestDryRunSubmitter(t *testing.T) {
	sub, err := NewDryRunSubmitter()
	require.NoError(t, err)

	a, err := sub.Submit(context.Background(), testMint())
	require.NoError(t, err)
	b, err := sub.Submit(context.Background(), testMint())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, sub.Mints(), 2)

	other := testMint()
	other.Amount++
	c, err := sub.Submit(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	bad := testMint()
	bad.Recipient = "monero"
	_, err = sub.Submit(context.Background(), bad)
	assert.Error(t, err)
	assert.Len(t, sub.Mints(), 3)
}

func TestCommitment(t *testing.T) {
	assert.Equal(t, Commitment("tx", "key", testRecipient), Commitment("tx", "key", testRecipient))
	assert.NotEqual(t, Commitment("tx", "key", testRecipient), Commitment("tx", "key2", testRecipient))
}
