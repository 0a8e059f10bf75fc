package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicate         = errors.New("operation already tracked")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("operation not found")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSigning Status = "signing"
	StatusSigned  Status = "signed"
	StatusMinted  Status = "minted"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusMinted || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPending: {StatusSigning, StatusFailed},
	StatusSigning: {StatusSigned, StatusFailed},
	StatusSigned:  {StatusMinted, StatusFailed},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Record is the persisted state of one deposit, keyed by its operation hash.
type Record struct {
	OperationHash string    `json:"operation_hash"`
	ClaimID       string    `json:"claim_id"`
	TxID          string    `json:"tx_id"`
	TxKey         string    `json:"tx_key,omitempty"`
	RequestedAt   int64     `json:"requested_at"`
	Amount        uint64    `json:"amount"`
	Recipient     string    `json:"recipient"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	SignatureR    string    `json:"signature_r,omitempty"`
	SignatureS    string    `json:"signature_s,omitempty"`
	SignatureV    uint8     `json:"signature_v,omitempty"`
	MintTxHash    string    `json:"mint_tx_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store is the idempotency ledger. Track and Transition are atomic per operation hash:
// of two concurrent callers at most one succeeds.
type Store interface {
	Track(ctx context.Context, rec *Record) error
	Get(ctx context.Context, operationHash string) (*Record, error)
	Transition(ctx context.Context, operationHash string, from, to Status, mutate func(*Record)) (*Record, error)
	List(ctx context.Context, statuses ...Status) ([]Record, error)
	Close() error
}

func newPending(rec *Record, now time.Time) Record {
	out := *rec
	out.Status = StatusPending
	out.CreatedAt = now
	out.UpdatedAt = now
	return out
}

func applyTransition(rec *Record, from, to Status, mutate func(*Record), now time.Time) error {
	if rec.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, rec.OperationHash, rec.Status, from)
	}
	if !canTransition(from, to) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, from, to)
	}
	if mutate != nil {
		mutate(rec)
	}
	rec.Status = to
	rec.UpdatedAt = now
	return nil
}

func matches(rec *Record, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if rec.Status == s {
			return true
		}
	}
	return false
}
