package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	plain := []byte(`{"party_index":1}`)
	sealed, err := SealWithPassphrase("hunter2", plain)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.False(t, bytes.Contains(sealed, plain))

	opened, err := OpenWithPassphrase("hunter2", sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)

	again, err := SealWithPassphrase("hunter2", plain)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "salt and nonce are random")
}

func TestOpenFailures(t *testing.T) {
	sealed, err := SealWithPassphrase("hunter2", []byte("secret"))
	require.NoError(t, err)

	_, err = OpenWithPassphrase("wrong", sealed)
	assert.Error(t, err)

	_, err = OpenWithPassphrase("hunter2", []byte("plain json"))
	assert.Error(t, err)

	_, err = OpenWithPassphrase("hunter2", sealed[:len(sealedMagic)+4])
	assert.Error(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = OpenWithPassphrase("hunter2", tampered)
	assert.Error(t, err)

	_, err = SealWithPassphrase("", []byte("secret"))
	assert.Error(t, err)
}

func TestDecodeHex(t *testing.T) {
	for _, in := range []string{"0xdeadbeef", "0Xdeadbeef", "deadbeef"} {
		b, err := DecodeHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)
	}
	_, err := DecodeHex("0xzz")
	assert.Error(t, err)
}

func TestCheckIfPublicKeyIsValid(t *testing.T) {
	compressed := append([]byte{0x02}, make([]byte, 32)...)
	uncompressed := append([]byte{0x04}, make([]byte, 64)...)

	assert.True(t, CheckIfPublicKeyIsValid(compressed, true))
	assert.True(t, CheckIfPublicKeyIsValid(uncompressed, true))
	assert.False(t, CheckIfPublicKeyIsValid(append([]byte{0x05}, make([]byte, 32)...), true))
	assert.False(t, CheckIfPublicKeyIsValid(make([]byte, 32), true))

	assert.True(t, CheckIfPublicKeyIsValid(make([]byte, 32), false))
	assert.False(t, CheckIfPublicKeyIsValid(compressed, false))
}
