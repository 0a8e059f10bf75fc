package validator

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/xmr-bridge/internal/chain"
	"github.com/vultisig/xmr-bridge/internal/deposit"
	"github.com/vultisig/xmr-bridge/internal/ledger"
	"github.com/vultisig/xmr-bridge/internal/network"
	"github.com/vultisig/xmr-bridge/internal/proof"
	"github.com/vultisig/xmr-bridge/internal/signing"
)

// submitterFor picks the validator that sends the mint: be32(opHash[0:4]) mod N.
func submitterFor(operationHash string, totalParties int) (int, error) {
	raw, err := hex.DecodeString(operationHash)
	if err != nil || len(raw) < 4 {
		return 0, fmt.Errorf("invalid operation hash %q", operationHash)
	}
	return int(binary.BigEndian.Uint32(raw[:4]) % uint32(totalParties)), nil
}

// process runs one claim through the pipeline. It returns early, leaving the claim
// queued, while the deposit is still confirming.
func (n *Node) process(ctx context.Context, claim deposit.Claim) {
	opHash := claim.OperationHashHex()
	logger := n.logger.WithFields(logrus.Fields{"operation_hash": opHash, "txid": claim.TxID})

	// a round that has started is finished even when the node is shutting down
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.opts.SigningTimeout)
	defer cancel()

	rec, err := n.deps.Ledger.Get(work, opHash)
	if err != nil {
		logger.WithError(err).Error("failed to read ledger")
		return
	}
	if rec.Status != ledger.StatusPending {
		n.queue.Done(opHash)
		return
	}

	check, err := n.deps.Source.CheckTransaction(work, claim.TxID, claim.TxKey, n.opts.BridgeAddress)
	if err != nil {
		logger.WithError(err).Warn("failed to check deposit")
		n.expireIfStale(work, claim, "deposit source unavailable: "+err.Error())
		return
	}

	req, err := n.deps.Coordinator.Prepare(claim, check)
	if err != nil {
		var vErr *signing.DepositValidationError
		if errors.As(err, &vErr) && !vErr.Pending() {
			n.deps.Metrics.DepositsRejected.WithLabelValues(vErr.Field).Inc()
		}
		if signing.IsPending(err) {
			logger.WithError(err).Debug("deposit not ready")
			n.expireIfStale(work, claim, err.Error())
			return
		}
		logger.WithError(err).Warn("deposit rejected")
		n.queue.Done(opHash)
		n.fail(work, opHash, ledger.StatusPending, err.Error())
		return
	}
	n.deps.Metrics.DepositsValidated.Inc()

	if _, err := n.deps.Ledger.Transition(work, opHash, ledger.StatusPending, ledger.StatusSigning, nil); err != nil {
		n.queue.Done(opHash)
		if errors.Is(err, ledger.ErrInvalidTransition) {
			logger.Warn("operation already past pending, not signing again")
			return
		}
		logger.WithError(err).Error("failed to start signing")
		return
	}
	n.queue.Done(opHash)

	result, err := n.deps.Coordinator.Sign(work, req)
	if err != nil {
		n.deps.Metrics.SigningFailures.Inc()
		logger.WithError(err).Error("signing failed")
		n.fail(work, opHash, ledger.StatusSigning, "signing failed: "+err.Error())
		return
	}
	n.deps.Metrics.SignaturesProduced.Inc()

	sig := result.Signature
	if _, err := n.deps.Ledger.Transition(work, opHash, ledger.StatusSigning, ledger.StatusSigned, func(r *ledger.Record) {
		r.SignatureR = hex.EncodeToString(sig.R)
		r.SignatureS = hex.EncodeToString(sig.S)
		r.SignatureV = sig.V
	}); err != nil {
		logger.WithError(err).Error("failed to record signature")
		return
	}

	leader, err := submitterFor(opHash, n.opts.TotalParties)
	if err != nil {
		logger.WithError(err).Error("failed to pick submitter")
		return
	}
	if leader != n.opts.ValidatorID {
		logger.WithField("submitter", leader).Info("signed, waiting for the submitter to mint")
		// notices that arrived while this validator was still signing
		if p, ok := n.announced(network.MessageMinted, opHash); ok {
			n.markMinted(work, opHash, p.TxHash)
		} else if p, ok := n.announced(network.MessageMintFailed, opHash); ok {
			n.markMintFailed(work, opHash, leader, p.Reason)
		}
		return
	}
	n.mint(work, req, result, logger)
}

// mint runs policy, proof and submission for a signed operation.
func (n *Node) mint(ctx context.Context, req *signing.Request, result *signing.Result, logger *logrus.Entry) {
	opHash := req.OperationHashHex()
	claim := req.Claim

	ciphertext, err := proof.PolicyInput{
		Amount:           claim.Amount,
		Timestamp:        uint64(claim.RequestedAt),
		CurrentTimestamp: uint64(n.now().Unix()),
	}.Encode()
	if err == nil {
		var ok bool
		ok, err = n.deps.Policy.Evaluate(ctx, ciphertext)
		if err == nil && !ok {
			err = errors.New("policy rejected the mint")
		}
	}
	if err != nil {
		n.mintFailed(ctx, opHash, err, logger)
		return
	}

	receipt, err := n.deps.Prover.GenerateReceipt(ctx, proof.Deposit{
		OperationHash: opHash,
		TxID:          claim.TxID,
		TxKey:         claim.TxKey,
		Amount:        claim.Amount,
		Recipient:     claim.Recipient,
		Destination:   req.Deposit.Destination,
		Confirmations: req.Deposit.Confirmations,
	})
	if err != nil {
		n.mintFailed(ctx, opHash, err, logger)
		return
	}

	txHash, err := n.deps.Submitter.Submit(ctx, chain.Mint{
		Recipient:  claim.Recipient,
		Amount:     claim.Amount,
		DepositID:  req.OperationHash,
		Commitment: chain.Commitment(claim.TxID, claim.TxKey, claim.Recipient),
		Receipt:    receipt,
		Signature:  result.Signature,
	})
	if err != nil {
		n.mintFailed(ctx, opHash, err, logger)
		return
	}
	n.deps.Metrics.MintsSubmitted.Inc()

	if _, err := n.deps.Ledger.Transition(ctx, opHash, ledger.StatusSigned, ledger.StatusMinted, func(r *ledger.Record) {
		r.MintTxHash = txHash
	}); err != nil {
		logger.WithError(err).WithField("tx_hash", txHash).Error("mint sent but not recorded")
	}
	logger.WithField("tx_hash", txHash).Info("mint submitted")

	if _, _, err := n.deps.Transport.Publish(ctx, network.MessageMinted, mintNotice{OperationHash: opHash, TxHash: txHash}); err != nil {
		logger.WithError(err).Warn("failed to announce mint")
	}
}

// mintFailed fails the operation locally and tells the other validators, which
// would otherwise keep it signed.
func (n *Node) mintFailed(ctx context.Context, opHash string, err error, logger *logrus.Entry) {
	n.deps.Metrics.MintsFailed.Inc()
	logger.WithError(err).Error("mint failed")
	n.fail(ctx, opHash, ledger.StatusSigned, err.Error())

	notice := mintNotice{OperationHash: opHash, Reason: err.Error()}
	if _, _, perr := n.deps.Transport.Publish(ctx, network.MessageMintFailed, notice); perr != nil {
		logger.WithError(perr).Warn("failed to announce mint failure")
	}
}

// expireIfStale fails a claim that has waited longer than MaxPending.
func (n *Node) expireIfStale(ctx context.Context, claim deposit.Claim, reason string) {
	if n.opts.MaxPending <= 0 {
		return
	}
	age := n.now().Sub(time.Unix(claim.RequestedAt, 0))
	if age < n.opts.MaxPending {
		return
	}
	opHash := claim.OperationHashHex()
	n.queue.Done(opHash)
	n.fail(ctx, opHash, ledger.StatusPending, fmt.Sprintf("pending for %s: %s", age.Round(time.Second), reason))
}

// expireSigned fails signed operations whose outcome the submitter has not
// announced within MaxPending of signing.
func (n *Node) expireSigned(ctx context.Context) {
	if n.opts.MaxPending <= 0 {
		return
	}
	records, err := n.deps.Ledger.List(ctx, ledger.StatusSigned)
	if err != nil {
		n.logger.WithError(err).Error("failed to read ledger")
		return
	}
	for _, rec := range records {
		age := n.now().Sub(rec.UpdatedAt)
		if age < n.opts.MaxPending || !n.claimInflight(rec.OperationHash) {
			continue
		}
		n.fail(ctx, rec.OperationHash, ledger.StatusSigned,
			fmt.Sprintf("no mint announced %s after signing", age.Round(time.Second)))
		n.releaseInflight(rec.OperationHash)
	}
}

func (n *Node) fail(ctx context.Context, opHash string, from ledger.Status, reason string) {
	_, err := n.deps.Ledger.Transition(ctx, opHash, from, ledger.StatusFailed, func(r *ledger.Record) {
		r.Reason = reason
	})
	if err != nil {
		n.logger.WithError(err).WithField("operation_hash", opHash).Error("failed to mark operation failed")
		return
	}
	n.logger.WithFields(logrus.Fields{"operation_hash": opHash, "reason": reason}).Warn("operation failed")
}
