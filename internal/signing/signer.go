package signing

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vultisig/xmr-bridge/internal/tss"
)

// Partial is one party's contribution to a threshold signature.
type Partial struct {
	PartyIndex int          `json:"party_index"`
	Share      tss.HexBytes `json:"share"`
}

// Signature is a combined ECDSA signature. V is 27 or 28 once recovered.
type Signature struct {
	R tss.HexBytes `json:"r"`
	S tss.HexBytes `json:"s"`
	V uint8        `json:"v"`
}

// Bytes returns r || s || v.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, crypto.SignatureLength)
	out = append(out, s.R...)
	out = append(out, s.S...)
	return append(out, s.V)
}

// Signer is the threshold signing capability of one party: produce a partial over
// a message from the local share, then combine at least threshold partials into (r, s).
type Signer interface {
	PartyIndex() int
	Threshold() int
	SignPartial(ctx context.Context, msg []byte) (Partial, error)
	Combine(ctx context.Context, msg []byte, partials []Partial) (*Signature, error)
}

// SimulatedSigner exchanges raw signing shares and interpolates the joint key in
// process. It is only valid with deterministic simulated shares.
//
// The partial it produces is the validator's raw EthSigningShare, and it travels in
// every SIGNED message. Anyone holding T of those messages, from the wire or from a
// peer's message log, can rebuild the joint private key. Use it only on a closed test
// network whose logs never leave it.
type SimulatedSigner struct {
	share        *tss.KeyShare
	joint        *ecdsa.PublicKey
	publicShares map[int][]byte
}

// NewSimulatedSigner builds a signer for share. publicShares maps party index to the
// compressed public share of that party; partials that do not match are rejected.
func NewSimulatedSigner(share *tss.KeyShare, jointPublicKey []byte, publicShares map[int][]byte) (*SimulatedSigner, error) {
	if !share.Simulated {
		return nil, fmt.Errorf("share of validator %d is not a simulated share", share.ValidatorIndex)
	}
	if len(share.EthSigningShare) == 0 {
		return nil, fmt.Errorf("share of validator %d has no signing share", share.ValidatorIndex)
	}
	joint, err := ParsePublicKey(jointPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid joint public key: %w", err)
	}
	return &SimulatedSigner{share: share, joint: joint, publicShares: publicShares}, nil
}

func (s *SimulatedSigner) PartyIndex() int {
	return s.share.PartyIndex
}

func (s *SimulatedSigner) Threshold() int {
	return s.share.Threshold
}

// SignPartial returns the raw signing share, see SimulatedSigner.
func (s *SimulatedSigner) SignPartial(_ context.Context, msg []byte) (Partial, error) {
	if len(msg) != 32 {
		return Partial{}, fmt.Errorf("message must be 32 bytes, got %d", len(msg))
	}
	return Partial{
		PartyIndex: s.share.PartyIndex,
		Share:      append(tss.HexBytes(nil), s.share.EthSigningShare...),
	}, nil
}

func (s *SimulatedSigner) Combine(_ context.Context, msg []byte, partials []Partial) (*Signature, error) {
	selected, err := s.selectPartials(partials)
	if err != nil {
		return nil, err
	}
	shares := make([]tss.IndexedShare, len(selected))
	for i, p := range selected {
		shares[i] = tss.IndexedShare{PartyIndex: p.PartyIndex, Value: p.Share}
	}
	secret, err := tss.ReconstructEthSecret(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine partials: %w", err)
	}
	key, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to combine partials: %w", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != crypto.PubkeyToAddress(*s.joint) {
		return nil, fmt.Errorf("combined partials do not match the joint public key")
	}

	sig, err := crypto.Sign(msg, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return &Signature{R: sig[:32], S: sig[32:64]}, nil
}

// selectPartials keeps one valid partial per party, lowest party index first, and
// returns exactly threshold of them.
func (s *SimulatedSigner) selectPartials(partials []Partial) ([]Partial, error) {
	byParty := make(map[int]Partial, len(partials))
	for _, p := range partials {
		if _, ok := byParty[p.PartyIndex]; ok {
			continue
		}
		if p.PartyIndex < 1 || p.PartyIndex > s.share.TotalParties {
			continue
		}
		if !s.partialMatches(p) {
			continue
		}
		byParty[p.PartyIndex] = p
	}
	if len(byParty) < s.share.Threshold {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientPartials, s.share.Threshold, len(byParty))
	}
	out := make([]Partial, 0, len(byParty))
	for _, p := range byParty {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyIndex < out[j].PartyIndex })
	return out[:s.share.Threshold], nil
}

func (s *SimulatedSigner) partialMatches(p Partial) bool {
	want, ok := s.publicShares[p.PartyIndex]
	if !ok {
		return s.publicShares == nil
	}
	key, err := crypto.ToECDSA(p.Share)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.CompressPubkey(&key.PublicKey), want)
}

// ParsePublicKey accepts a compressed or uncompressed secp256k1 public key.
func ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	switch len(b) {
	case 33:
		return crypto.DecompressPubkey(b)
	case 65:
		return crypto.UnmarshalPubkey(b)
	default:
		return nil, fmt.Errorf("unexpected public key length %d", len(b))
	}
}
