package tss

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vultisig/xmr-bridge/address"
)

// Combine aggregates at least threshold public shares into the joint keys.
// The EVM and Monero public keys are the Lagrange-weighted sums of the shares' public
// points, so every subset of threshold shares yields the same identity.
func Combine(shares []KeyShare) (*JointKeys, error) {
	sorted, err := checkShareSet(shares)
	if err != nil {
		return nil, err
	}

	xs := make([]int, len(sorted))
	ethPoints := make([][]byte, len(sorted))
	moneroPoints := make([][]byte, len(sorted))
	commitments := make([]HexBytes, len(sorted))
	for i, s := range sorted {
		xs[i] = s.PartyIndex
		ethPoints[i] = s.EthPublicShare
		moneroPoints[i] = s.MoneroPublicShare
		commitments[i] = s.Commitment
	}

	ethPublic, err := secpInterpolatePoints(xs, ethPoints)
	if err != nil {
		return nil, err
	}
	moneroPublic, err := edInterpolatePoints(xs, moneroPoints)
	if err != nil {
		return nil, err
	}
	return jointKeys(ethPublic.SerializeCompressed(), moneroPublic, sorted[0].MoneroNetwork, commitments)
}

func checkShareSet(shares []KeyShare) ([]KeyShare, error) {
	if len(shares) == 0 {
		return nil, ErrEmptyShareSet
	}
	first := shares[0]
	seen := make(map[int]bool, len(shares))
	for _, s := range shares {
		if s.Threshold != first.Threshold || s.TotalParties != first.TotalParties {
			return nil, errors.Wrapf(ErrInvalidParameters, "share %s is %d-of-%d, expected %d-of-%d",
				s.Label(), s.Threshold, s.TotalParties, first.Threshold, first.TotalParties)
		}
		if s.MoneroNetwork != first.MoneroNetwork {
			return nil, errors.Wrapf(ErrInvalidParameters, "share %s is for %s, expected %s", s.Label(), s.MoneroNetwork, first.MoneroNetwork)
		}
		if s.PartyIndex < 1 || s.PartyIndex > s.TotalParties {
			return nil, errors.Wrapf(ErrInvalidParameters, "party index %d out of range", s.PartyIndex)
		}
		if seen[s.PartyIndex] {
			return nil, errors.Wrapf(ErrInvalidParameters, "duplicate party index %d", s.PartyIndex)
		}
		seen[s.PartyIndex] = true
	}
	if len(shares) < first.Threshold {
		return nil, errors.Wrapf(ErrInsufficientShares, "have %d, need %d", len(shares), first.Threshold)
	}

	sorted := append([]KeyShare(nil), shares...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartyIndex < sorted[j].PartyIndex })
	return sorted, nil
}

// ValidateConsistency fails unless every validator derived the same joint addresses.
func ValidateConsistency(ethAddresses, moneroAddresses []string) error {
	if len(ethAddresses) == 0 || len(moneroAddresses) == 0 {
		return ErrEmptyShareSet
	}
	if len(ethAddresses) != len(moneroAddresses) {
		return errors.Wrapf(ErrInconsistentAddresses, "%d ethereum addresses but %d monero addresses",
			len(ethAddresses), len(moneroAddresses))
	}
	for i := 1; i < len(ethAddresses); i++ {
		if !strings.EqualFold(ethAddresses[i], ethAddresses[0]) {
			return errors.Wrapf(ErrInconsistentAddresses, "ethereum address %d is %s, expected %s", i, ethAddresses[i], ethAddresses[0])
		}
		if moneroAddresses[i] != moneroAddresses[0] {
			return errors.Wrapf(ErrInconsistentAddresses, "monero address %d is %s, expected %s", i, moneroAddresses[i], moneroAddresses[0])
		}
	}
	return nil
}

// sumContributions derives the joint keys as the plain sum of every validator's
// contribution public key. Requires the full share set.
func sumContributions(shares []KeyShare) (*JointKeys, error) {
	ethPoints := make([][]byte, len(shares))
	moneroPoints := make([][]byte, len(shares))
	commitments := make([]HexBytes, len(shares))
	for i, s := range shares {
		ethPoints[i] = s.EthPublicKey
		moneroPoints[i] = s.MoneroPublicKey
		commitments[i] = s.Commitment
	}
	ethPublic, err := secpSumPoints(ethPoints)
	if err != nil {
		return nil, err
	}
	moneroPublic, err := edSumPoints(moneroPoints)
	if err != nil {
		return nil, err
	}
	return jointKeys(ethPublic.SerializeCompressed(), moneroPublic, shares[0].MoneroNetwork, commitments)
}

// CombineAll combines the complete share set and cross-checks it: every window of
// threshold consecutive shares and the sum of all contribution keys must agree with
// the full interpolation.
func CombineAll(shares []KeyShare) (*JointKeys, error) {
	sorted, err := checkShareSet(shares)
	if err != nil {
		return nil, err
	}
	total := sorted[0].TotalParties
	if len(sorted) != total {
		return nil, errors.Wrapf(ErrInsufficientShares, "have %d of %d validator shares", len(sorted), total)
	}

	joint, err := Combine(sorted)
	if err != nil {
		return nil, err
	}
	summed, err := sumContributions(sorted)
	if err != nil {
		return nil, err
	}

	ethAddresses := []string{joint.EthereumAddress, summed.EthereumAddress}
	moneroAddresses := []string{joint.MoneroAddress, summed.MoneroAddress}
	threshold := sorted[0].Threshold
	for start := 0; start+threshold <= len(sorted); start++ {
		window, err := Combine(sorted[start : start+threshold])
		if err != nil {
			return nil, err
		}
		ethAddresses = append(ethAddresses, window.EthereumAddress)
		moneroAddresses = append(moneroAddresses, window.MoneroAddress)
	}
	if err := ValidateConsistency(ethAddresses, moneroAddresses); err != nil {
		return nil, err
	}
	return joint, nil
}

// BuildBridgeKeys produces the published summary for one epoch from every validator's share.
func BuildBridgeKeys(shares []KeyShare, epoch uint64, now time.Time) (*BridgeKeys, error) {
	joint, err := CombineAll(shares)
	if err != nil {
		return nil, err
	}
	_, viewPublic, err := address.DeriveMoneroViewKey(joint.MoneroPublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "derive monero view key")
	}

	sorted := append([]KeyShare(nil), shares...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartyIndex < sorted[j].PartyIndex })
	holders := make([]ShareHolder, 0, len(sorted))
	for _, s := range sorted {
		holders = append(holders, ShareHolder{
			Label:             s.Label(),
			ValidatorIndex:    s.ValidatorIndex,
			PartyIndex:        s.PartyIndex,
			IdentityKey:       s.EthPublicKey,
			EthPublicShare:    s.EthPublicShare,
			MoneroPublicShare: s.MoneroPublicShare,
			Commitment:        s.Commitment,
		})
	}

	return &BridgeKeys{
		Epoch:               epoch,
		EthereumAddress:     joint.EthereumAddress,
		EthereumPublicKey:   joint.EthereumPublicKey,
		MoneroAddress:       joint.MoneroAddress,
		MoneroPublicKey:     joint.MoneroPublicKey,
		MoneroViewPublicKey: viewPublic,
		MoneroNetwork:       sorted[0].MoneroNetwork,
		Validators:          holders,
		Threshold:           sorted[0].Threshold,
		TotalValidators:     sorted[0].TotalParties,
		CreatedAt:           now.UTC(),
	}, nil
}
