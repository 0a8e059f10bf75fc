package tss

import (
	"encoding/hex"
	"time"

	"github.com/vultisig/xmr-bridge/common"
)

// HexBytes is a byte slice that serialises as a hex string.
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := common.DecodeHex(string(text))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// KeyShare is one validator's fragment of the joint identity.
//
// The contribution keys (EthPrivateKey, MoneroPrivateKey) are the validator's own
// secrets, the signing shares are its evaluation point on the joint sharing polynomial.
// Shares produced by Generator are deterministic and only suitable for simulated mode.
type KeyShare struct {
	PartyIndex     int `json:"party_index"`
	ValidatorIndex int `json:"validator_index"`
	Threshold      int `json:"threshold"`
	TotalParties   int `json:"total_parties"`

	EthPrivateKey    HexBytes `json:"eth_private_key"`
	EthPublicKey     HexBytes `json:"eth_public_key"`
	MoneroPrivateKey HexBytes `json:"monero_private_key"`
	MoneroPublicKey  HexBytes `json:"monero_public_key"`
	Commitment       HexBytes `json:"commitment"`

	EthSigningShare    HexBytes `json:"eth_signing_share"`
	EthPublicShare     HexBytes `json:"eth_public_share"`
	MoneroSigningShare HexBytes `json:"monero_signing_share"`
	MoneroPublicShare  HexBytes `json:"monero_public_share"`

	MoneroNetwork common.Chain `json:"monero_network"`
	Simulated     bool         `json:"simulated"`
}

// Label is the share-holder name used in the published bridge keys.
func (k *KeyShare) Label() string {
	return ShareLabel(k.ValidatorIndex)
}

// Public returns a copy of the share with every private field cleared.
func (k *KeyShare) Public() KeyShare {
	out := *k
	out.EthPrivateKey = nil
	out.MoneroPrivateKey = nil
	out.EthSigningShare = nil
	out.MoneroSigningShare = nil
	return out
}

// JointKeys is the joint identity derived from a set of shares.
type JointKeys struct {
	EthereumAddress   string     `json:"ethereum_address"`
	EthereumPublicKey HexBytes   `json:"ethereum_public_key"`
	MoneroAddress     string     `json:"monero_address"`
	MoneroPublicKey   HexBytes   `json:"monero_public_key"`
	Commitments       []HexBytes `json:"commitments"`
}

// ShareHolder is the public record of one validator in BridgeKeys.
type ShareHolder struct {
	Label             string   `json:"label"`
	ValidatorIndex    int      `json:"validator_index"`
	PartyIndex        int      `json:"party_index"`
	IdentityKey       HexBytes `json:"identity_key"`
	EthPublicShare    HexBytes `json:"eth_public_share"`
	MoneroPublicShare HexBytes `json:"monero_public_share"`
	Commitment        HexBytes `json:"commitment"`
}

// BridgeKeys is the published summary of one key generation epoch.
type BridgeKeys struct {
	Epoch               uint64        `json:"epoch"`
	EthereumAddress     string        `json:"ethereum_address"`
	EthereumPublicKey   HexBytes      `json:"ethereum_public_key"`
	MoneroAddress       string        `json:"monero_address"`
	MoneroPublicKey     HexBytes      `json:"monero_public_key"`
	MoneroViewPublicKey HexBytes      `json:"monero_view_public_key"`
	MoneroNetwork       common.Chain  `json:"monero_network"`
	Validators          []ShareHolder `json:"validators"`
	Threshold           int           `json:"threshold"`
	TotalValidators     int           `json:"total_validators"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Holder returns the share holder with the given validator index.
func (b *BridgeKeys) Holder(validatorIndex int) (ShareHolder, bool) {
	for _, h := range b.Validators {
		if h.ValidatorIndex == validatorIndex {
			return h, true
		}
	}
	return ShareHolder{}, false
}
