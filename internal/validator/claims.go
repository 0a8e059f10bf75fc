package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/xmr-bridge/internal/deposit"
	"github.com/vultisig/xmr-bridge/internal/ledger"
	"github.com/vultisig/xmr-bridge/internal/network"
)

// mintNotice is the payload of the submitter's MINTED and MINT_FAILED messages.
type mintNotice struct {
	OperationHash string `json:"operation_hash"`
	TxHash        string `json:"tx_hash,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func recordFromClaim(claim deposit.Claim) *ledger.Record {
	return &ledger.Record{
		OperationHash: claim.OperationHashHex(),
		ClaimID:       claim.ID,
		TxID:          claim.TxID,
		TxKey:         claim.TxKey,
		RequestedAt:   claim.RequestedAt,
		Amount:        claim.Amount,
		Recipient:     claim.Recipient,
	}
}

func claimFromRecord(rec *ledger.Record) deposit.Claim {
	return deposit.Claim{
		ID:          rec.ClaimID,
		TxID:        rec.TxID,
		TxKey:       rec.TxKey,
		Amount:      rec.Amount,
		Recipient:   rec.Recipient,
		RequestedAt: rec.RequestedAt,
	}
}

// redact drops the deposit secret before a record leaves the node.
func redact(rec *ledger.Record) *ledger.Record {
	out := *rec
	out.TxKey = ""
	return &out
}

// SubmitClaim tracks a new claim and queues it for polling. A claim whose operation
// hash is already tracked fails with ledger.ErrDuplicate.
func (n *Node) SubmitClaim(ctx context.Context, claim deposit.Claim) (*ledger.Record, error) {
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	if err := n.track(ctx, claim); err != nil {
		return nil, err
	}

	if n.opts.RelayClaims {
		_, result, err := n.deps.Transport.Publish(ctx, network.MessageClaim, claim)
		if err != nil {
			n.logger.WithError(err).WithField("txid", claim.TxID).Warn("failed to relay claim")
		} else {
			n.logger.WithFields(logrus.Fields{
				"txid":   claim.TxID,
				"sent":   result.Sent,
				"failed": result.Failed,
			}).Debug("claim relayed")
		}
	}

	rec, err := n.deps.Ledger.Get(ctx, claim.OperationHashHex())
	if err != nil {
		return nil, err
	}
	return redact(rec), nil
}

func (n *Node) track(ctx context.Context, claim deposit.Claim) error {
	if err := n.deps.Ledger.Track(ctx, recordFromClaim(claim)); err != nil {
		return err
	}
	n.queue.Add(claim)
	n.deps.Metrics.ClaimsAccepted.Inc()
	n.logger.WithFields(logrus.Fields{
		"txid":           claim.TxID,
		"operation_hash": claim.OperationHashHex(),
		"amount":         claim.Amount,
	}).Info("claim accepted")
	return nil
}

func (n *Node) Deposit(ctx context.Context, operationHash string) (*ledger.Record, error) {
	rec, err := n.deps.Ledger.Get(ctx, operationHash)
	if err != nil {
		return nil, err
	}
	return redact(rec), nil
}

// onClaim tracks claims relayed by other validators.
func (n *Node) onClaim(ctx context.Context, msg network.ConsensusMessage) {
	if msg.ValidatorID == n.opts.ValidatorID {
		return
	}
	var claim deposit.Claim
	if err := msg.Decode(&claim); err != nil {
		n.logger.WithError(err).WithField("from", msg.ValidatorID).Warn("invalid claim message")
		return
	}
	if err := claim.Validate(); err != nil {
		n.logger.WithError(err).WithField("from", msg.ValidatorID).Warn("invalid relayed claim")
		return
	}
	if err := n.track(ctx, claim); err != nil && !errors.Is(err, ledger.ErrDuplicate) {
		n.logger.WithError(err).WithField("txid", claim.TxID).Error("failed to track relayed claim")
	}
}

// onMinted records a mint announced by the designated submitter.
func (n *Node) onMinted(ctx context.Context, msg network.ConsensusMessage) {
	p, ok := n.submitterNotice(msg)
	if !ok {
		return
	}
	n.markMinted(ctx, p.OperationHash, p.TxHash)
}

// onMintFailed fails a signed operation the designated submitter gave up on.
func (n *Node) onMintFailed(ctx context.Context, msg network.ConsensusMessage) {
	p, ok := n.submitterNotice(msg)
	if !ok {
		return
	}
	n.markMintFailed(ctx, p.OperationHash, msg.ValidatorID, p.Reason)
}

func (n *Node) submitterNotice(msg network.ConsensusMessage) (mintNotice, bool) {
	var p mintNotice
	if err := msg.Decode(&p); err != nil {
		n.logger.WithError(err).WithField("from", msg.ValidatorID).Warn("invalid mint notice")
		return p, false
	}
	leader, err := submitterFor(p.OperationHash, n.opts.TotalParties)
	if err != nil || leader != msg.ValidatorID {
		n.logger.WithFields(logrus.Fields{
			"from":     msg.ValidatorID,
			"msg_type": msg.Type,
		}).Warn("ignoring mint notice from a validator that is not the submitter")
		return p, false
	}
	return p, true
}

func (n *Node) markMinted(ctx context.Context, operationHash, txHash string) {
	_, err := n.deps.Ledger.Transition(ctx, operationHash, ledger.StatusSigned, ledger.StatusMinted, func(r *ledger.Record) {
		r.MintTxHash = txHash
	})
	if err != nil {
		if !errors.Is(err, ledger.ErrInvalidTransition) && !errors.Is(err, ledger.ErrNotFound) {
			n.logger.WithError(err).WithField("operation_hash", operationHash).Error("failed to record mint")
		}
		return
	}
	n.logger.WithFields(logrus.Fields{"operation_hash": operationHash, "tx_hash": txHash}).Info("mint recorded")
}

func (n *Node) markMintFailed(ctx context.Context, operationHash string, submitter int, reason string) {
	reason = fmt.Sprintf("submitter %d failed to mint: %s", submitter, reason)
	_, err := n.deps.Ledger.Transition(ctx, operationHash, ledger.StatusSigned, ledger.StatusFailed, func(r *ledger.Record) {
		r.Reason = reason
	})
	if err != nil {
		if !errors.Is(err, ledger.ErrInvalidTransition) && !errors.Is(err, ledger.ErrNotFound) {
			n.logger.WithError(err).WithField("operation_hash", operationHash).Error("failed to record mint failure")
		}
		return
	}
	n.logger.WithFields(logrus.Fields{"operation_hash": operationHash, "reason": reason}).Warn("operation failed")
}

// announced returns the submitter's msgType notice for operationHash already in the log.
func (n *Node) announced(msgType network.MessageType, operationHash string) (mintNotice, bool) {
	leader, err := submitterFor(operationHash, n.opts.TotalParties)
	if err != nil {
		return mintNotice{}, false
	}
	for _, msg := range n.deps.Transport.Messages(msgType) {
		var p mintNotice
		if msg.ValidatorID != leader || msg.Decode(&p) != nil {
			continue
		}
		if p.OperationHash == operationHash {
			return p, true
		}
	}
	return mintNotice{}, false
}
