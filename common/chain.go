package common

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

type Chain int

const (
	Undefined Chain = iota
	Ethereum
	Sepolia
	Holesky
	Monero
	MoneroStagenet
	MoneroTestnet
)

var chainToString = map[Chain]string{
	Ethereum:       "Ethereum",
	Sepolia:        "Sepolia",
	Holesky:        "Holesky",
	Monero:         "Monero",
	MoneroStagenet: "MoneroStagenet",
	MoneroTestnet:  "MoneroTestnet",
}

func FromString(str string) (Chain, error) {
	for key, value := range chainToString {
		if strings.EqualFold(value, str) {
			return key, nil
		}
	}
	return Undefined, fmt.Errorf("unsupported chain: %s", str)
}

// MoneroFromNetwork maps the wallet RPC network names (mainnet, stagenet, testnet)
// to a chain value.
func MoneroFromNetwork(network string) (Chain, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return Monero, nil
	case "stagenet":
		return MoneroStagenet, nil
	case "testnet":
		return MoneroTestnet, nil
	default:
		return Undefined, fmt.Errorf("unsupported monero network: %s", network)
	}
}

func (c Chain) IsEvm() bool {
	_, err := c.EvmID()
	return err == nil
}

func (c Chain) EvmID() (*big.Int, error) {
	switch c {
	case Ethereum:
		return big.NewInt(1), nil
	case Sepolia:
		return big.NewInt(11155111), nil
	case Holesky:
		return big.NewInt(17000), nil
	default:
		return nil, fmt.Errorf("no EVM ID for this chain: %d", c)
	}
}

func (c Chain) IsMonero() bool {
	return c == Monero || c == MoneroStagenet || c == MoneroTestnet
}

// AddressPrefix returns the public address network byte for standard Monero addresses.
func (c Chain) AddressPrefix() (byte, error) {
	switch c {
	case Monero:
		return 18, nil
	case MoneroStagenet:
		return 24, nil
	case MoneroTestnet:
		return 53, nil
	default:
		return 0, fmt.Errorf("no monero address prefix for this chain: %v", c)
	}
}

func (c Chain) NativeSymbol() (string, error) {
	switch c {
	case Ethereum, Sepolia, Holesky:
		return "ETH", nil
	case Monero, MoneroStagenet, MoneroTestnet:
		return "XMR", nil
	default:
		return "", fmt.Errorf("unsupported chain: %v", c)
	}
}

func (c Chain) String() string {
	if str, ok := chainToString[c]; ok {
		return str
	}
	return "UNKNOWN"
}

func (c Chain) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var chainStr string
	if err := json.Unmarshal(data, &chainStr); err != nil {
		return err
	}
	for key, value := range chainToString {
		if value == chainStr {
			*c = key
			return nil
		}
	}
	return fmt.Errorf("unsupported chain: %s", chainStr)
}

// IsEdDSA reports whether keys on the chain live on Ed25519.
func (c Chain) IsEdDSA() bool {
	return c.IsMonero()
}
