package tss

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v4"

	"github.com/vultisig/xmr-bridge/address"
	"github.com/vultisig/xmr-bridge/common"
)

const (
	seedDomain        = "tss_bridge_seed"
	ethDomain         = "ethereum_tss_"
	moneroDomain      = "monero_tss_"
	commitmentDomain  = "commitment_"
	ethCoeffDomain    = "secp256k1_coeff_"
	moneroCoeffDomain = "ed25519_coeff_"
)

// Generator derives key shares from (validator index, threshold, total parties).
//
// Every validator i contributes a secret on each curve and deals it with a degree
// threshold-1 polynomial, party i+1 holds the sum of all polynomials at its index.
// All of it is a pure function of the parameters, so any party can re-derive any
// other party's share: this is a deterministic stand-in for a real DKG and is only
// valid in simulated mode.
type Generator struct {
	Threshold     int
	TotalParties  int
	MoneroNetwork common.Chain
}

func NewGenerator(threshold, totalParties int, moneroNetwork common.Chain) (*Generator, error) {
	g := &Generator{
		Threshold:     threshold,
		TotalParties:  totalParties,
		MoneroNetwork: moneroNetwork,
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Generator) validate() error {
	if g.Threshold < 1 || g.TotalParties < 1 || g.Threshold > g.TotalParties {
		return errors.Wrapf(ErrInvalidParameters, "threshold %d of %d", g.Threshold, g.TotalParties)
	}
	if !g.MoneroNetwork.IsMonero() {
		return errors.Wrapf(ErrInvalidParameters, "%s is not a monero network", g.MoneroNetwork)
	}
	return nil
}

type contribution struct {
	seed       [32]byte
	ethRaw     []byte
	eth        btcec.ModNScalar
	moneroRaw  []byte
	monero     kyber.Scalar
	commitment []byte
}

func (g *Generator) seed(validatorIndex int) [32]byte {
	var buf [8]byte
	h := sha256.New()
	h.Write([]byte(seedDomain))
	for _, v := range []int{validatorIndex, g.TotalParties, g.Threshold} {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func domainHash(domain string, parts ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// clampSecp256k1 forces the low bit of byte 0 on and the high bit of byte 31 off.
func clampSecp256k1(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[0] |= 0x01
	out[31] &= 0x7f
	return out
}

// clampEd25519 applies the standard Ed25519 scalar clamp.
func clampEd25519(b []byte) []byte {
	out := append([]byte(nil), b...)
	out[0] &= 0xf8
	out[31] &= 0x7f
	out[31] |= 0x40
	return out
}

func (g *Generator) contribution(validatorIndex int) (*contribution, error) {
	c := &contribution{seed: g.seed(validatorIndex)}

	c.ethRaw = clampSecp256k1(domainHash(ethDomain, c.seed[:]))
	eth, err := secpScalar(c.ethRaw)
	if err != nil {
		return nil, errors.Wrapf(err, "validator %d ethereum key", validatorIndex)
	}
	c.eth = eth

	c.moneroRaw = clampEd25519(domainHash(moneroDomain, c.seed[:]))
	c.monero = edReduce(c.moneroRaw)
	if c.monero.Equal(edSuite.Scalar().Zero()) {
		return nil, errors.Wrapf(ErrInvalidScalar, "validator %d monero key reduces to zero", validatorIndex)
	}

	c.commitment = domainHash(commitmentDomain, c.seed[:])
	return c, nil
}

func coeffIndex(k int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	return buf[:]
}

func (g *Generator) ethPolynomial(c *contribution) []btcec.ModNScalar {
	coeffs := make([]btcec.ModNScalar, g.Threshold)
	coeffs[0] = c.eth
	for k := 1; k < g.Threshold; k++ {
		coeffs[k] = secpReduce(domainHash(ethCoeffDomain, c.seed[:], coeffIndex(k)))
	}
	return coeffs
}

func (g *Generator) moneroPolynomial(c *contribution) []kyber.Scalar {
	coeffs := make([]kyber.Scalar, g.Threshold)
	coeffs[0] = c.monero
	for k := 1; k < g.Threshold; k++ {
		coeffs[k] = edReduce(domainHash(moneroCoeffDomain, c.seed[:], coeffIndex(k)))
	}
	return coeffs
}

// Generate derives the key share of validatorIndex and the joint keys of the whole set.
// Repeated calls with the same generator and index return identical output.
func (g *Generator) Generate(validatorIndex int) (*KeyShare, *JointKeys, error) {
	if err := g.validate(); err != nil {
		return nil, nil, err
	}
	if validatorIndex < 0 || validatorIndex >= g.TotalParties {
		return nil, nil, errors.Wrapf(ErrInvalidParameters, "validator index %d out of range [0,%d)", validatorIndex, g.TotalParties)
	}

	contributions := make([]*contribution, g.TotalParties)
	for i := range contributions {
		c, err := g.contribution(i)
		if err != nil {
			return nil, nil, err
		}
		contributions[i] = c
	}

	party := validatorIndex + 1
	var ethShare, ethJoint btcec.ModNScalar
	moneroShare := edSuite.Scalar().Zero()
	moneroJoint := edSuite.Scalar().Zero()
	commitments := make([]HexBytes, 0, len(contributions))
	for _, c := range contributions {
		v := secpEval(g.ethPolynomial(c), party)
		ethShare.Add(&v)
		ethJoint.Add(&c.eth)

		moneroShare = edSuite.Scalar().Add(moneroShare, edEval(g.moneroPolynomial(c), party))
		moneroJoint = edSuite.Scalar().Add(moneroJoint, c.monero)

		commitments = append(commitments, HexBytes(c.commitment))
	}
	if ethShare.IsZero() || ethJoint.IsZero() {
		return nil, nil, errors.Wrap(ErrInvalidScalar, "aggregated secp256k1 scalar is zero")
	}

	own := contributions[validatorIndex]
	moneroPublic, err := edBaseMul(own.monero)
	if err != nil {
		return nil, nil, err
	}
	moneroShareBytes, err := moneroShare.MarshalBinary()
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode monero signing share")
	}
	moneroPublicShare, err := edBaseMul(moneroShare)
	if err != nil {
		return nil, nil, err
	}
	ethShareBytes := ethShare.Bytes()

	share := &KeyShare{
		PartyIndex:         party,
		ValidatorIndex:     validatorIndex,
		Threshold:          g.Threshold,
		TotalParties:       g.TotalParties,
		EthPrivateKey:      HexBytes(own.ethRaw),
		EthPublicKey:       secpBaseMul(&own.eth).SerializeCompressed(),
		MoneroPrivateKey:   HexBytes(own.moneroRaw),
		MoneroPublicKey:    moneroPublic,
		Commitment:         HexBytes(own.commitment),
		EthSigningShare:    ethShareBytes[:],
		EthPublicShare:     secpBaseMul(&ethShare).SerializeCompressed(),
		MoneroSigningShare: moneroShareBytes,
		MoneroPublicShare:  moneroPublicShare,
		MoneroNetwork:      g.MoneroNetwork,
		Simulated:          true,
	}

	moneroJointPublic, err := edBaseMul(moneroJoint)
	if err != nil {
		return nil, nil, err
	}
	joint, err := jointKeys(secpBaseMul(&ethJoint).SerializeCompressed(), moneroJointPublic, g.MoneroNetwork, commitments)
	if err != nil {
		return nil, nil, err
	}
	return share, joint, nil
}

func jointKeys(ethPublic, moneroPublic []byte, network common.Chain, commitments []HexBytes) (*JointKeys, error) {
	ethAddress, err := address.EVMAddressFromBytes(ethPublic)
	if err != nil {
		return nil, errors.Wrap(err, "derive ethereum address")
	}
	moneroAddress, err := address.GetMoneroAddress(moneroPublic, network)
	if err != nil {
		return nil, errors.Wrap(err, "derive monero address")
	}
	return &JointKeys{
		EthereumAddress:   ethAddress,
		EthereumPublicKey: ethPublic,
		MoneroAddress:     moneroAddress,
		MoneroPublicKey:   moneroPublic,
		Commitments:       commitments,
	}, nil
}
