package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sirupsen/logrus"
)

// DryRunSubmitter encodes mints without sending them. The returned hash is the
// Keccak256 of the call data.
type DryRunSubmitter struct {
	abi    abi.ABI
	logger *logrus.Entry

	mu    sync.Mutex
	mints []Mint
}

func NewDryRunSubmitter() (*DryRunSubmitter, error) {
	parsed, err := parseBridgeABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse bridge abi: %w", err)
	}
	return &DryRunSubmitter{
		abi:    parsed,
		logger: logrus.WithField("service", "submitter"),
	}, nil
}

func (d *DryRunSubmitter) Submit(_ context.Context, mint Mint) (string, error) {
	if err := mint.validate(); err != nil {
		return "", err
	}
	data, err := d.abi.Pack(mintMethod, mint.callArgs()...)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", mintMethod, err)
	}

	d.mu.Lock()
	d.mints = append(d.mints, mint)
	d.mu.Unlock()

	hash := callHash(data)
	d.logger.WithFields(logrus.Fields{"tx_hash": hash, "amount": mint.Amount}).Warn("dry run: mint not sent")
	return hash, nil
}

// Mints returns the mints seen so far.
func (d *DryRunSubmitter) Mints() []Mint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Mint(nil), d.mints...)
}
