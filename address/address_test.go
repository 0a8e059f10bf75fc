package address

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/common"
)

const (
	// secp256k1 generator, i.e. the public key of private key 1
	testECDSAPublicKey             = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	testECDSAUncompressedPublicKey = "0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8"
	testECDSAAddress               = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
	// Ed25519 base point
	testEdDSAPublicKey = "5866666666666666666666666666666666666666666666666666666666666666"
)

func TestGetAddress(t *testing.T) {
	ecdsaKey, _ := hex.DecodeString(testECDSAPublicKey)
	ecdsaUncompressed, _ := hex.DecodeString(testECDSAUncompressedPublicKey)
	eddsaKey, _ := hex.DecodeString(testEdDSAPublicKey)

	successTests := []struct {
		name      string
		chain     common.Chain
		inputKey  []byte
		want      string
		wantFirst byte
	}{
		{
			name:     "Ethereum compressed",
			chain:    common.Ethereum,
			inputKey: ecdsaKey,
			want:     testECDSAAddress,
		},
		{
			name:     "Sepolia uncompressed",
			chain:    common.Sepolia,
			inputKey: ecdsaUncompressed,
			want:     testECDSAAddress,
		},
		{
			name:      "Monero mainnet",
			chain:     common.Monero,
			inputKey:  eddsaKey,
			wantFirst: '4',
		},
		{
			name:      "Monero stagenet",
			chain:     common.MoneroStagenet,
			inputKey:  eddsaKey,
			wantFirst: '5',
		},
	}

	for _, tt := range successTests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetAddress(tt.inputKey, tt.chain)
			require.NoError(t, err)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			if tt.wantFirst != 0 {
				assert.Len(t, got, 95)
				assert.Equal(t, tt.wantFirst, got[0])
			}
		})
	}

	failureTests := []struct {
		name     string
		chain    common.Chain
		inputKey []byte
	}{
		{name: "empty key", chain: common.Ethereum, inputKey: nil},
		{name: "ed25519 key on evm chain", chain: common.Ethereum, inputKey: eddsaKey},
		{name: "secp256k1 key on monero", chain: common.Monero, inputKey: ecdsaKey},
		{name: "undefined chain", chain: common.Undefined, inputKey: ecdsaKey},
	}

	for _, tt := range failureTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetAddress(tt.inputKey, tt.chain)
			assert.Error(t, err)
		})
	}
}
