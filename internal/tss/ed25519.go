package tss

import (
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/group/edwards25519"
)

var edSuite = edwards25519.NewBlakeSHA256Ed25519()

// edReduce interprets b as little-endian and reduces it mod l.
func edReduce(b []byte) kyber.Scalar {
	return edSuite.Scalar().SetBytes(b)
}

func edEval(coeffs []kyber.Scalar, x int) kyber.Scalar {
	xs := edSuite.Scalar().SetInt64(int64(x))
	acc := edSuite.Scalar().Zero()
	for k := len(coeffs) - 1; k >= 0; k-- {
		acc = edSuite.Scalar().Mul(acc, xs)
		acc = edSuite.Scalar().Add(acc, coeffs[k])
	}
	return acc
}

func edBaseMul(s kyber.Scalar) ([]byte, error) {
	b, err := edSuite.Point().Mul(s, nil).MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode ed25519 point")
	}
	return b, nil
}

func edLagrange(xs []int, j int) kyber.Scalar {
	num := edSuite.Scalar().One()
	den := edSuite.Scalar().One()
	xj := edSuite.Scalar().SetInt64(int64(xs[j]))
	for m, x := range xs {
		if m == j {
			continue
		}
		xm := edSuite.Scalar().SetInt64(int64(x))
		num = edSuite.Scalar().Mul(num, xm)
		den = edSuite.Scalar().Mul(den, edSuite.Scalar().Sub(xm, xj))
	}
	return edSuite.Scalar().Div(num, den)
}

func edPoint(raw []byte) (kyber.Point, error) {
	p := edSuite.Point()
	if err := p.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return p, nil
}

// edInterpolatePoints Lagrange-interpolates public shares at zero.
func edInterpolatePoints(xs []int, points [][]byte) ([]byte, error) {
	acc := edSuite.Point().Null()
	for j, raw := range points {
		p, err := edPoint(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse ed25519 public share of party %d", xs[j])
		}
		acc = edSuite.Point().Add(acc, edSuite.Point().Mul(edLagrange(xs, j), p))
	}
	if acc.Equal(edSuite.Point().Null()) {
		return nil, errors.New("ed25519 interpolation produced the identity")
	}
	return acc.MarshalBinary()
}

func edSumPoints(points [][]byte) ([]byte, error) {
	acc := edSuite.Point().Null()
	for i, raw := range points {
		p, err := edPoint(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse ed25519 public key %d", i)
		}
		acc = edSuite.Point().Add(acc, p)
	}
	return acc.MarshalBinary()
}
