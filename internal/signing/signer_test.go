package signing

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/common"
	"github.com/vultisig/xmr-bridge/internal/tss"
)

type testKeys struct {
	shares       []tss.KeyShare
	joint        *tss.JointKeys
	publicShares map[int][]byte
}

func generateKeys(t *testing.T, threshold, total int) testKeys {
	t.Helper()
	g, err := tss.NewGenerator(threshold, total, common.MoneroStagenet)
	require.NoError(t, err)

	keys := testKeys{publicShares: make(map[int][]byte)}
	for i := 0; i < total; i++ {
		share, joint, err := g.Generate(i)
		require.NoError(t, err)
		keys.shares = append(keys.shares, *share)
		keys.joint = joint
		keys.publicShares[share.PartyIndex] = share.EthPublicShare
	}
	return keys
}

func (k testKeys) signer(t *testing.T, i int) *SimulatedSigner {
	t.Helper()
	s, err := NewSimulatedSigner(&k.shares[i], k.joint.EthereumPublicKey, k.publicShares)
	require.NoError(t, err)
	return s
}

func TestSimulatedSignerAnySubset(t *testing.T) {
	keys := generateKeys(t, 2, 3)
	ctx := context.Background()
	msg := crypto.Keccak256([]byte("mint"))

	partials := make([]Partial, 3)
	for i := range partials {
		p, err := keys.signer(t, i).SignPartial(ctx, msg)
		require.NoError(t, err)
		partials[i] = p
	}

	combiner := keys.signer(t, 0)
	var first *Signature
	for _, subset := range [][]Partial{
		{partials[0], partials[1]},
		{partials[1], partials[2]},
		{partials[2], partials[0]},
		partials,
	} {
		sig, err := combiner.Combine(ctx, msg, subset)
		require.NoError(t, err)
		if first == nil {
			first = sig
			continue
		}
		assert.Equal(t, first.R, sig.R)
		assert.Equal(t, first.S, sig.S)
	}

	joint, err := ParsePublicKey(keys.joint.EthereumPublicKey)
	require.NoError(t, err)
	sig := append(append([]byte{}, first.R...), first.S...)
	assert.True(t, crypto.VerifySignature(crypto.CompressPubkey(joint), msg, sig))
}

func TestSimulatedSignerRejectsBadPartials(t *testing.T) {
	keys := generateKeys(t, 2, 3)
	ctx := context.Background()
	msg := crypto.Keccak256([]byte("mint"))
	combiner := keys.signer(t, 0)

	p0, err := combiner.SignPartial(ctx, msg)
	require.NoError(t, err)

	_, err = combiner.Combine(ctx, msg, []Partial{p0})
	assert.ErrorIs(t, err, ErrInsufficientPartials)

	_, err = combiner.Combine(ctx, msg, []Partial{p0, p0})
	assert.ErrorIs(t, err, ErrInsufficientPartials, "duplicate party counts once")

	forged := Partial{PartyIndex: 2, Share: keys.shares[2].EthSigningShare}
	_, err = combiner.Combine(ctx, msg, []Partial{p0, forged})
	assert.ErrorIs(t, err, ErrInsufficientPartials, "share does not match party 2's public share")

	_, err = combiner.SignPartial(ctx, []byte("short"))
	assert.Error(t, err)
}

func TestSimulatedPartialsRevealJointKey(t *testing.T) {
	keys := generateKeys(t, 2, 3)
	msg := crypto.Keccak256([]byte("mint"))

	var shares []tss.IndexedShare
	for i := 0; i < 2; i++ {
		p, err := keys.signer(t, i).SignPartial(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, []byte(keys.shares[i].EthSigningShare), []byte(p.Share), "partial is the raw signing share")
		shares = append(shares, tss.IndexedShare{PartyIndex: p.PartyIndex, Value: p.Share})
	}

	// two broadcast partials are enough to rebuild the joint key
	secret, err := tss.ReconstructEthSecret(shares)
	require.NoError(t, err)
	key, err := crypto.ToECDSA(secret)
	require.NoError(t, err)
	assert.Equal(t, keys.joint.EthereumAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestNewSimulatedSignerChecksShare(t *testing.T) {
	keys := generateKeys(t, 2, 3)

	public := keys.shares[0].Public()
	_, err := NewSimulatedSigner(&public, keys.joint.EthereumPublicKey, nil)
	assert.Error(t, err)

	notSimulated := keys.shares[0]
	notSimulated.Simulated = false
	_, err = NewSimulatedSigner(&notSimulated, keys.joint.EthereumPublicKey, nil)
	assert.Error(t, err)

	_, err = NewSimulatedSigner(&keys.shares[0], []byte{1, 2, 3}, nil)
	assert.Error(t, err)
}

func TestRecoverVIdempotent(t *testing.T) {
	keys := generateKeys(t, 2, 3)
	ctx := context.Background()
	joint, err := ParsePublicKey(keys.joint.EthereumPublicKey)
	require.NoError(t, err)

	msg := crypto.Keccak256([]byte("operation"))
	partials := make([]Partial, 0, 2)
	for i := 0; i < 2; i++ {
		p, err := keys.signer(t, i).SignPartial(ctx, msg)
		require.NoError(t, err)
		partials = append(partials, p)
	}

	var vs []uint8
	for i := 0; i < 2; i++ {
		sig, err := keys.signer(t, 0).Combine(ctx, msg, partials)
		require.NoError(t, err)
		v, err := RecoverV(msg, sig.R, sig.S, joint)
		require.NoError(t, err)
		assert.Contains(t, []uint8{27, 28}, v)
		vs = append(vs, v)
	}
	assert.Equal(t, vs[0], vs[1])
}

func TestRecoverVMatchesSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msg := crypto.Keccak256([]byte("message"))
	sig, err := crypto.Sign(msg, key)
	require.NoError(t, err)

	v, err := RecoverV(msg, sig[:32], sig[32:64], &key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, sig[64]+27, v)

	full := Signature{R: sig[:32], S: sig[32:64], V: v}
	assert.Len(t, full.Bytes(), crypto.SignatureLength)
}

func TestRecoverVNotFound(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	msg := crypto.Keccak256([]byte("message"))
	sig, err := crypto.Sign(msg, key)
	require.NoError(t, err)

	_, err = RecoverV(msg, sig[:32], sig[32:64], &other.PublicKey)
	assert.ErrorIs(t, err, ErrRecoveryIDNotFound)

	_, err = RecoverV(msg, sig[:31], sig[32:64], &key.PublicKey)
	assert.ErrorIs(t, err, ErrRecoveryIDNotFound)
}
