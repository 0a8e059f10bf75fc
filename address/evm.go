package address

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// GetEVMAddress returns the checksummed address for a compressed (33 byte) or
// uncompressed (65 byte) secp256k1 public key given as hex.
func GetEVMAddress(hexPublicKey string) (string, error) {
	pubKeyBytes, err := hex.DecodeString(hexPublicKey)
	if err != nil {
		return "", fmt.Errorf("invalid derived ECDSA public key: %w", err)
	}
	return EVMAddressFromBytes(pubKeyBytes)
}

func EVMAddressFromBytes(pubKeyBytes []byte) (string, error) {
	switch {
	case len(pubKeyBytes) == 33:
		pubKey, err := crypto.DecompressPubkey(pubKeyBytes)
		if err != nil {
			return "", fmt.Errorf("failed to decompress public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pubKey).Hex(), nil
	case len(pubKeyBytes) == 65 && pubKeyBytes[0] == 0x04:
		pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pubKey).Hex(), nil
	default:
		return "", fmt.Errorf("unsupported public key format: len=%d", len(pubKeyBytes))
	}
}
