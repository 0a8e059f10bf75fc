package tss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/common"
)

func generateAll(t *testing.T, threshold, total int) ([]KeyShare, *JointKeys) {
	t.Helper()
	g, err := NewGenerator(threshold, total, common.MoneroStagenet)
	require.NoError(t, err)

	shares := make([]KeyShare, 0, total)
	var joint *JointKeys
	for i := 0; i < total; i++ {
		share, j, err := g.Generate(i)
		require.NoError(t, err)
		shares = append(shares, *share)
		joint = j
	}
	return shares, joint
}

func TestGenerateDeterministic(t *testing.T) {
	g, err := NewGenerator(2, 3, common.MoneroStagenet)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		share1, joint1, err := g.Generate(i)
		require.NoError(t, err)
		share2, joint2, err := g.Generate(i)
		require.NoError(t, err)

		assert.Equal(t, share1, share2)
		assert.Equal(t, joint1, joint2)
		assert.Equal(t, i+1, share1.PartyIndex)
		assert.True(t, share1.Simulated)
	}
}

func TestGenerateDependsOnParameters(t *testing.T) {
	a, err := NewGenerator(2, 3, common.MoneroStagenet)
	require.NoError(t, err)
	b, err := NewGenerator(3, 3, common.MoneroStagenet)
	require.NoError(t, err)

	shareA, jointA, err := a.Generate(0)
	require.NoError(t, err)
	shareB, jointB, err := b.Generate(0)
	require.NoError(t, err)

	assert.NotEqual(t, shareA.EthPrivateKey, shareB.EthPrivateKey)
	assert.NotEqual(t, jointA.EthereumAddress, jointB.EthereumAddress)
}

func TestGenerateJointKeysAgree(t *testing.T) {
	g, err := NewGenerator(2, 3, common.MoneroStagenet)
	require.NoError(t, err)

	_, first, err := g.Generate(0)
	require.NoError(t, err)
	for i := 1; i < 3; i++ {
		_, joint, err := g.Generate(i)
		require.NoError(t, err)
		assert.Equal(t, first, joint)
	}
	assert.Len(t, first.Commitments, 3)
	assert.Equal(t, byte('5'), first.MoneroAddress[0])
}

func TestClamping(t *testing.T) {
	shares, _ := generateAll(t, 3, 5)
	for _, s := range shares {
		require.Len(t, s.EthPrivateKey, 32)
		assert.Equal(t, byte(0x01), s.EthPrivateKey[0]&0x01, "eth byte 0 low bit set")
		assert.Equal(t, byte(0x00), s.EthPrivateKey[31]&0x80, "eth byte 31 high bit clear")

		require.Len(t, s.MoneroPrivateKey, 32)
		assert.Equal(t, byte(0x00), s.MoneroPrivateKey[0]&0x07, "ed25519 low 3 bits clear")
		assert.Equal(t, byte(0x40), s.MoneroPrivateKey[31]&0xc0, "ed25519 top bits 01")
	}
}

func TestClampFunctions(t *testing.T) {
	ones := make([]byte, 32)
	zeros := make([]byte, 32)
	for i := range ones {
		ones[i] = 0xff
	}

	secp := clampSecp256k1(zeros)
	assert.Equal(t, byte(0x01), secp[0])
	assert.Equal(t, byte(0x00), secp[31])
	secp = clampSecp256k1(ones)
	assert.Equal(t, byte(0xff), secp[0])
	assert.Equal(t, byte(0x7f), secp[31])

	ed := clampEd25519(ones)
	assert.Equal(t, byte(0xf8), ed[0])
	assert.Equal(t, byte(0x7f), ed[31])
	ed = clampEd25519(zeros)
	assert.Equal(t, byte(0x00), ed[0])
	assert.Equal(t, byte(0x40), ed[31])

	// input is not modified
	assert.Equal(t, byte(0xff), ones[0])
}

func TestGenerateInvalidParameters(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		total     int
		network   common.Chain
	}{
		{name: "zero threshold", threshold: 0, total: 3, network: common.Monero},
		{name: "threshold above total", threshold: 4, total: 3, network: common.Monero},
		{name: "non monero network", threshold: 2, total: 3, network: common.Ethereum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.threshold, tt.total, tt.network)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}

	g, err := NewGenerator(2, 3, common.Monero)
	require.NoError(t, err)
	_, _, err = g.Generate(3)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	_, _, err = g.Generate(-1)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
