package signing

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/xmr-bridge/internal/deposit"
	"github.com/vultisig/xmr-bridge/internal/network"
	"github.com/vultisig/xmr-bridge/internal/tss"
)

// SignedPayload is the data of a SIGNED consensus message.
type SignedPayload struct {
	OperationHash string       `json:"operation_hash"`
	Version       int          `json:"version"`
	Message       tss.HexBytes `json:"message"`
	Partial       Partial      `json:"partial"`
}

// Result is the outcome of one signing round on this validator.
type Result struct {
	Signature      Signature `json:"signature"`
	OperationHash  string    `json:"operation_hash"`
	Timestamp      int64     `json:"timestamp"`
	ValidatorIndex int       `json:"validator_index"`
}

type CoordinatorOptions struct {
	Gate      Gate
	Signer    Signer
	Transport *network.Transport
	// JointPublicKey is the compressed or uncompressed joint secp256k1 key.
	JointPublicKey []byte
	// Timeout bounds the wait for partials. Defaults to 60s.
	Timeout time.Duration
	// QuorumWait observes seconds spent waiting for partials. Optional.
	QuorumWait prometheus.Observer
}

// Coordinator turns a validated deposit into a recoverable joint signature.
type Coordinator struct {
	opts   CoordinatorOptions
	joint  *ecdsa.PublicKey
	logger *logrus.Entry
}

func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Signer == nil || opts.Transport == nil {
		return nil, fmt.Errorf("signer and transport are required")
	}
	joint, err := ParsePublicKey(opts.JointPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid joint public key: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Coordinator{
		opts:  opts,
		joint: joint,
		logger: logrus.WithFields(logrus.Fields{
			"service":      "signing",
			"validator_id": opts.Transport.ValidatorID(),
		}),
	}, nil
}

// Prepare runs the deposit gate and builds the signing request.
func (c *Coordinator) Prepare(claim deposit.Claim, check *deposit.Check) (*Request, error) {
	validated, err := c.opts.Gate.Validate(claim, check)
	if err != nil {
		return nil, err
	}
	return NewRequest(claim, validated), nil
}

// Sign publishes this party's partial, waits for threshold partials over the same
// message, combines them and recovers v. Nothing is retried.
func (c *Coordinator) Sign(ctx context.Context, req *Request) (*Result, error) {
	msg := req.Message()
	opHash := req.OperationHashHex()
	logger := c.logger.WithFields(logrus.Fields{"operation_hash": opHash, "txid": req.Claim.TxID})

	partial, err := c.opts.Signer.SignPartial(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to produce partial signature: %w", err)
	}
	_, sent, err := c.opts.Transport.Publish(ctx, network.MessageSigned, SignedPayload{
		OperationHash: opHash,
		Version:       MessageVersion,
		Message:       msg,
		Partial:       partial,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish partial signature: %w", err)
	}
	logger.WithFields(logrus.Fields{"sent": sent.Sent, "failed": sent.Failed}).Debug("partial signature published")

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	start := time.Now()
	msgs, err := c.opts.Transport.CollectQuorum(waitCtx, network.MessageSigned, c.opts.Signer.Threshold(), matchPayload(opHash, msg))
	if c.opts.QuorumWait != nil {
		c.opts.QuorumWait.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	partials := make([]Partial, 0, len(msgs))
	for _, m := range msgs {
		var p SignedPayload
		if err := m.Decode(&p); err != nil {
			continue
		}
		partials = append(partials, p.Partial)
	}
	sig, err := c.opts.Signer.Combine(ctx, msg, partials)
	if err != nil {
		return nil, err
	}
	v, err := RecoverV(msg, sig.R, sig.S, c.joint)
	if err != nil {
		logger.WithError(err).Error("combined signature does not recover the joint key")
		return nil, err
	}
	sig.V = v

	logger.WithField("v", v).Info("operation signed")
	return &Result{
		Signature:      *sig,
		OperationHash:  opHash,
		Timestamp:      req.Timestamp,
		ValidatorIndex: c.opts.Transport.ValidatorID(),
	}, nil
}

func matchPayload(opHash string, msg []byte) func(network.ConsensusMessage) bool {
	return func(m network.ConsensusMessage) bool {
		var p SignedPayload
		if err := m.Decode(&p); err != nil {
			return false
		}
		return p.Version == MessageVersion && p.OperationHash == opHash && bytes.Equal(p.Message, msg)
	}
}
