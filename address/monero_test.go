package address

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/common"
)

func TestMoneroAddressDecode(t *testing.T) {
	spend, _ := hex.DecodeString(testEdDSAPublicKey)

	addr, err := GetMoneroAddress(spend, common.MoneroStagenet)
	require.NoError(t, err)

	prefix, gotSpend, gotView, err := DecodeMoneroAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, byte(24), prefix)
	assert.Equal(t, spend, gotSpend)

	_, wantView, err := DeriveMoneroViewKey(spend)
	require.NoError(t, err)
	assert.Equal(t, wantView, gotView)
}

func TestMoneroAddressChecksum(t *testing.T) {
	spend, _ := hex.DecodeString(testEdDSAPublicKey)
	addr, err := GetMoneroAddress(spend, common.Monero)
	require.NoError(t, err)

	// swap one character in the middle of the spend key section
	tampered := []byte(addr)
	if tampered[20] == 'A' {
		tampered[20] = 'B'
	} else {
		tampered[20] = 'A'
	}

	_, _, _, err = DecodeMoneroAddress(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidMoneroAddress)
}

func TestMoneroBase58Blocks(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "zero block", data: make([]byte, 8), want: "11111111111"},
		{name: "single zero byte", data: []byte{0}, want: "11"},
		{name: "single byte", data: []byte{0x39}, want: "1z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := moneroBase58Encode(tt.data)
			assert.Equal(t, tt.want, got)

			back, err := moneroBase58Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.data, back)
		})
	}
}

func TestDeriveMoneroViewKeyDeterministic(t *testing.T) {
	spend, _ := hex.DecodeString(testEdDSAPublicKey)
	priv1, pub1, err := DeriveMoneroViewKey(spend)
	require.NoError(t, err)
	priv2, pub2, err := DeriveMoneroViewKey(spend)
	require.NoError(t, err)

	assert.Equal(t, priv1, priv2)
	assert.Equal(t, pub1, pub2)

	_, _, err = DeriveMoneroViewKey(spend[:31])
	assert.Error(t, err)
}
