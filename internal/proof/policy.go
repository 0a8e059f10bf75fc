package proof

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vultisig/xmr-bridge/internal/libhttp"
)

// MaxMintAmount is 10 XMR in atomic units.
const MaxMintAmount uint64 = 10_000_000_000_000

// PolicyInput is the plaintext that the policy engine receives encrypted.
type PolicyInput struct {
	Amount           uint64 `json:"amount"`
	Timestamp        uint64 `json:"timestamp"`
	CurrentTimestamp uint64 `json:"current_timestamp"`
}

// Encode returns the policy ciphertext. The engine owns the keys, so this side
// only serialises.
func (in PolicyInput) Encode() ([]byte, error) {
	return json.Marshal(in)
}

// Policy authorises a mint before it is submitted.
type Policy interface {
	Evaluate(ctx context.Context, ciphertext []byte) (bool, error)
}

type policyResponse struct {
	OK     bool   `json:"ok"`
	Amount uint64 `json:"amount"`
}

// HTTPPolicy calls a policy engine at POST <url>/evaluate.
type HTTPPolicy struct {
	url   string
	retry libhttp.RetryPolicy
}

func NewHTTPPolicy(url string, retry libhttp.RetryPolicy) *HTTPPolicy {
	return &HTTPPolicy{url: strings.TrimRight(url, "/"), retry: retry}
}

func (p *HTTPPolicy) Evaluate(ctx context.Context, ciphertext []byte) (bool, error) {
	body := map[string]string{"ciphertext": hex.EncodeToString(ciphertext)}
	resp, err := libhttp.CallWithRetry[policyResponse](ctx, p.retry, http.MethodPost, p.url+"/evaluate", nil, body, nil)
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed: %w", err)
	}
	return resp.OK, nil
}

// LimitPolicy evaluates the engine's rule locally: amount <= MaxAmount and the
// deposit timestamp no more than MaxSkew ahead of the current time.
type LimitPolicy struct {
	MaxAmount uint64
	MaxSkew   time.Duration
}

func DefaultLimitPolicy() LimitPolicy {
	return LimitPolicy{MaxAmount: MaxMintAmount, MaxSkew: time.Hour}
}

func (p LimitPolicy) Evaluate(_ context.Context, ciphertext []byte) (bool, error) {
	var in PolicyInput
	if err := json.Unmarshal(ciphertext, &in); err != nil {
		return false, fmt.Errorf("invalid policy input: %w", err)
	}
	return in.Amount <= p.MaxAmount && in.Timestamp <= in.CurrentTimestamp+uint64(p.MaxSkew.Seconds()), nil
}
