package address

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"go.dedis.ch/kyber/v4/group/edwards25519"

	"github.com/vultisig/xmr-bridge/common"
)

const (
	moneroKeySize      = 32
	moneroChecksumSize = 4
	moneroFullBlock    = 8
	moneroFullEncoded  = 11
)

// encoded length of a block of n bytes, n in [0, 8]
var moneroEncodedBlockSizes = []int{0, 2, 3, 5, 6, 7, 9, 10, 11}

var ErrInvalidMoneroAddress = errors.New("invalid monero address")

var ed25519Suite = edwards25519.NewBlakeSHA256Ed25519()

// DeriveMoneroViewKey derives the shared view key pair from the joint spend public key.
// Every validator holding the same spend key derives the same view key, which is what
// lets each of them scan the bridge wallet independently.
func DeriveMoneroViewKey(spendPublicKey []byte) (private []byte, public []byte, err error) {
	if len(spendPublicKey) != moneroKeySize {
		return nil, nil, fmt.Errorf("invalid spend public key length: %d", len(spendPublicKey))
	}
	viewScalar := ed25519Suite.Scalar().SetBytes(crypto.Keccak256(spendPublicKey))
	viewPoint := ed25519Suite.Point().Mul(viewScalar, nil)

	private, err = viewScalar.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode view key: %w", err)
	}
	public, err = viewPoint.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode view public key: %w", err)
	}
	return private, public, nil
}

// GetMoneroAddress builds a standard address for the given network from the spend public
// key. The view key is derived with DeriveMoneroViewKey.
func GetMoneroAddress(spendPublicKey []byte, chain common.Chain) (string, error) {
	_, viewPublicKey, err := DeriveMoneroViewKey(spendPublicKey)
	if err != nil {
		return "", err
	}
	return EncodeMoneroAddress(spendPublicKey, viewPublicKey, chain)
}

func EncodeMoneroAddress(spendPublicKey, viewPublicKey []byte, chain common.Chain) (string, error) {
	prefix, err := chain.AddressPrefix()
	if err != nil {
		return "", err
	}
	if len(spendPublicKey) != moneroKeySize || len(viewPublicKey) != moneroKeySize {
		return "", fmt.Errorf("invalid monero key length: spend=%d view=%d", len(spendPublicKey), len(viewPublicKey))
	}

	data := make([]byte, 0, 1+2*moneroKeySize+moneroChecksumSize)
	data = append(data, prefix)
	data = append(data, spendPublicKey...)
	data = append(data, viewPublicKey...)
	data = append(data, crypto.Keccak256(data)[:moneroChecksumSize]...)

	return moneroBase58Encode(data), nil
}

// DecodeMoneroAddress verifies the checksum and returns the network prefix and keys.
func DecodeMoneroAddress(addr string) (prefix byte, spend []byte, view []byte, err error) {
	data, err := moneroBase58Decode(addr)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(data) != 1+2*moneroKeySize+moneroChecksumSize {
		return 0, nil, nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidMoneroAddress, len(data))
	}
	body, checksum := data[:len(data)-moneroChecksumSize], data[len(data)-moneroChecksumSize:]
	if !bytes.Equal(crypto.Keccak256(body)[:moneroChecksumSize], checksum) {
		return 0, nil, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidMoneroAddress)
	}
	return body[0], body[1 : 1+moneroKeySize], body[1+moneroKeySize:], nil
}

func moneroBase58Encode(data []byte) string {
	var sb strings.Builder
	for len(data) > 0 {
		n := moneroFullBlock
		if len(data) < n {
			n = len(data)
		}
		block := base58.Encode(data[:n])
		size := moneroEncodedBlockSizes[n]
		sb.WriteString(strings.Repeat("1", size-len(block)))
		sb.WriteString(block)
		data = data[n:]
	}
	return sb.String()
}

func moneroBase58Decode(s string) ([]byte, error) {
	var out []byte
	for len(s) > 0 {
		n := moneroFullEncoded
		if len(s) < n {
			n = len(s)
		}
		blockSize := -1
		for i, size := range moneroEncodedBlockSizes {
			if size == n {
				blockSize = i
				break
			}
		}
		if blockSize < 0 {
			return nil, fmt.Errorf("%w: bad block length %d", ErrInvalidMoneroAddress, n)
		}

		digits := strings.TrimLeft(s[:n], "1")
		block := make([]byte, blockSize)
		if digits != "" {
			decoded, err := base58.Decode(digits)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidMoneroAddress, err)
			}
			if len(decoded) > blockSize {
				return nil, fmt.Errorf("%w: block overflow", ErrInvalidMoneroAddress)
			}
			copy(block[blockSize-len(decoded):], decoded)
		}
		out = append(out, block...)
		s = s[n:]
	}
	return out, nil
}
