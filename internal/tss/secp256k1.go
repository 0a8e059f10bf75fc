package tss

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
)

// IndexedShare is a scalar share held by the party with the given 1-based index.
type IndexedShare struct {
	PartyIndex int
	Value      []byte
}

// secpScalar parses a big-endian scalar and rejects zero or values >= n.
func secpScalar(b []byte) (btcec.ModNScalar, error) {
	var s btcec.ModNScalar
	if len(b) != 32 {
		return s, errors.Wrapf(ErrInvalidScalar, "secp256k1 scalar length %d", len(b))
	}
	if overflow := s.SetByteSlice(b); overflow {
		return s, errors.Wrap(ErrInvalidScalar, "secp256k1 scalar exceeds group order")
	}
	if s.IsZero() {
		return s, errors.Wrap(ErrInvalidScalar, "secp256k1 scalar is zero")
	}
	return s, nil
}

// secpReduce interprets b as big-endian and reduces it mod n.
func secpReduce(b []byte) btcec.ModNScalar {
	var s btcec.ModNScalar
	s.SetByteSlice(b)
	return s
}

func secpEval(coeffs []btcec.ModNScalar, x int) btcec.ModNScalar {
	var xs, acc btcec.ModNScalar
	xs.SetInt(uint32(x))
	for k := len(coeffs) - 1; k >= 0; k-- {
		acc.Mul(&xs)
		acc.Add(&coeffs[k])
	}
	return acc
}

func secpBaseMul(k *btcec.ModNScalar) *btcec.PublicKey {
	var p btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(k, &p)
	p.ToAffine()
	return btcec.NewPublicKey(&p.X, &p.Y)
}

// secpLagrange returns the Lagrange basis coefficient of xs[j] evaluated at zero.
func secpLagrange(xs []int, j int) btcec.ModNScalar {
	var num, den, xj btcec.ModNScalar
	num.SetInt(1)
	den.SetInt(1)
	xj.SetInt(uint32(xs[j]))
	for m, x := range xs {
		if m == j {
			continue
		}
		var xm, diff btcec.ModNScalar
		xm.SetInt(uint32(x))
		num.Mul(&xm)
		diff.NegateVal(&xj).Add(&xm)
		den.Mul(&diff)
	}
	den.InverseNonConst()
	return *num.Mul(&den)
}

func isInfinity(p *btcec.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}

// secpInterpolatePoints Lagrange-interpolates compressed public shares at zero.
func secpInterpolatePoints(xs []int, points [][]byte) (*btcec.PublicKey, error) {
	var acc btcec.JacobianPoint
	for j, raw := range points {
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse secp256k1 public share of party %d", xs[j])
		}
		var p, term btcec.JacobianPoint
		pub.AsJacobian(&p)
		lambda := secpLagrange(xs, j)
		btcec.ScalarMultNonConst(&lambda, &p, &term)
		var sum btcec.JacobianPoint
		btcec.AddNonConst(&acc, &term, &sum)
		acc = sum
	}
	if isInfinity(&acc) {
		return nil, errors.New("secp256k1 interpolation produced the point at infinity")
	}
	acc.ToAffine()
	return btcec.NewPublicKey(&acc.X, &acc.Y), nil
}

// secpSumPoints adds compressed or uncompressed public keys.
func secpSumPoints(points [][]byte) (*btcec.PublicKey, error) {
	var acc btcec.JacobianPoint
	for i, raw := range points {
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse secp256k1 public key %d", i)
		}
		var p, sum btcec.JacobianPoint
		pub.AsJacobian(&p)
		btcec.AddNonConst(&acc, &p, &sum)
		acc = sum
	}
	if isInfinity(&acc) {
		return nil, errors.New("secp256k1 sum is the point at infinity")
	}
	acc.ToAffine()
	return btcec.NewPublicKey(&acc.X, &acc.Y), nil
}

// ReconstructEthSecret interpolates the joint secp256k1 secret from signing shares.
// Only simulated signing uses this: it materialises the whole key in one process.
func ReconstructEthSecret(shares []IndexedShare) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrEmptyShareSet
	}
	xs := make([]int, len(shares))
	seen := make(map[int]bool, len(shares))
	for i, s := range shares {
		if seen[s.PartyIndex] {
			return nil, errors.Wrapf(ErrInvalidParameters, "duplicate party index %d", s.PartyIndex)
		}
		seen[s.PartyIndex] = true
		xs[i] = s.PartyIndex
	}

	var secret btcec.ModNScalar
	for j, s := range shares {
		v, err := secpScalar(s.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "signing share of party %d", s.PartyIndex)
		}
		lambda := secpLagrange(xs, j)
		v.Mul(&lambda)
		secret.Add(&v)
	}
	if secret.IsZero() {
		return nil, errors.Wrap(ErrInvalidScalar, "reconstructed secret is zero")
	}
	out := secret.Bytes()
	return out[:], nil
}
