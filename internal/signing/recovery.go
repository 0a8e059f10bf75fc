package signing

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverV returns the first v in {27, 28} for which (r, s) over msg recovers joint.
func RecoverV(msg, r, s []byte, joint *ecdsa.PublicKey) (uint8, error) {
	if len(r) != 32 || len(s) != 32 {
		return 0, fmt.Errorf("%w: r and s must be 32 bytes", ErrRecoveryIDNotFound)
	}
	want := crypto.PubkeyToAddress(*joint)

	sig := make([]byte, crypto.SignatureLength)
	copy(sig[:32], r)
	copy(sig[32:64], s)
	for _, v := range []uint8{27, 28} {
		sig[crypto.RecoveryIDOffset] = v - 27
		pub, err := crypto.SigToPub(msg, sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == want {
			return v, nil
		}
	}
	return 0, ErrRecoveryIDNotFound
}
