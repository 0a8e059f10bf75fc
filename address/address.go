package address

import (
	"fmt"

	"github.com/vultisig/xmr-bridge/common"
)

// GetAddress returns the address of a joint public key on the given chain.
// EVM chains take a secp256k1 key, Monero networks take the Ed25519 spend key.
func GetAddress(publicKey []byte, chain common.Chain) (string, error) {
	if !common.CheckIfPublicKeyIsValid(publicKey, !chain.IsEdDSA()) {
		return "", fmt.Errorf("invalid public key for %s: len=%d", chain, len(publicKey))
	}

	switch {
	case chain.IsEvm():
		return EVMAddressFromBytes(publicKey)
	case chain.IsMonero():
		return GetMoneroAddress(publicKey, chain)
	default:
		return "", fmt.Errorf("unsupported chain: %s", chain)
	}
}
