package proof

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vultisig/xmr-bridge/internal/libhttp"
	"github.com/vultisig/xmr-bridge/internal/tss"
)

// Deposit is what the proof subsystem attests to.
type Deposit struct {
	OperationHash string `json:"operation_hash"`
	TxID          string `json:"tx_id"`
	TxKey         string `json:"tx_key"`
	Amount        uint64 `json:"amount"`
	Recipient     string `json:"recipient"`
	Destination   string `json:"destination"`
	Confirmations uint64 `json:"confirmations"`
}

// Prover turns a validated deposit into an opaque receipt for the bridge contract.
type Prover interface {
	GenerateReceipt(ctx context.Context, dep Deposit) ([]byte, error)
}

type receiptResponse struct {
	Receipt tss.HexBytes `json:"receipt"`
}

// HTTPProver calls a remote proving service at POST <url>/receipt.
type HTTPProver struct {
	url   string
	retry libhttp.RetryPolicy
}

func NewHTTPProver(url string, retry libhttp.RetryPolicy) *HTTPProver {
	return &HTTPProver{url: strings.TrimRight(url, "/"), retry: retry}
}

func (p *HTTPProver) GenerateReceipt(ctx context.Context, dep Deposit) ([]byte, error) {
	resp, err := libhttp.CallWithRetry[receiptResponse](ctx, p.retry, http.MethodPost, p.url+"/receipt", nil, dep, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt for %s: %w", dep.OperationHash, err)
	}
	if len(resp.Receipt) == 0 {
		return nil, fmt.Errorf("prover returned an empty receipt for %s", dep.OperationHash)
	}
	return resp.Receipt, nil
}

// DigestProver produces SHA256 over the JSON deposit. It proves nothing and is
// meant for local networks with a permissive contract.
type DigestProver struct{}

func (DigestProver) GenerateReceipt(_ context.Context, dep Deposit) ([]byte, error) {
	buf, err := json.Marshal(dep)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(buf)
	return sum[:], nil
}
