package common

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

var sealedMagic = []byte("XBS1")

const (
	sealSaltSize = 16
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// SealWithPassphrase encrypts data with AES-GCM under an argon2id key derived from passphrase.
// Layout: magic | salt | nonce | ciphertext.
func SealWithPassphrase(passphrase string, plain []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}

	salt := make([]byte, sealSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealedMagic)+len(salt)+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plain, nil), nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(passphrase string, sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, errors.New("data is not sealed")
	}
	rest := sealed[len(sealedMagic):]
	if len(rest) < sealSaltSize {
		return nil, errors.New("ciphertext too short")
	}
	salt, rest := rest[:sealSaltSize], rest[sealSaltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the sealed-file header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealedMagic)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DecodeHex decodes a hex string with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func CheckIfPublicKeyIsValid(pubKeyBytes []byte, isEcdsa bool) bool {
	if isEcdsa {
		// Compressed ECDSA key (starts with 0x02 or 0x03)
		if len(pubKeyBytes) == 33 && (pubKeyBytes[0] == 0x02 || pubKeyBytes[0] == 0x03) {
			return true
		}
		// Uncompressed ECDSA key (starts with 0x04)
		if len(pubKeyBytes) == 65 && pubKeyBytes[0] == 0x04 {
			return true
		}
		return false
	}

	// EdDSA keys are 32 byte compressed points
	return len(pubKeyBytes) == 32
}
