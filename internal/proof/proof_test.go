package proof

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/internal/libhttp"
)

var testDeposit = Deposit{
	OperationHash: "ab",
	TxID:          "tx",
	TxKey:         "key",
	Amount:        1_000_000,
	Recipient:     "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf",
	Destination:   "5bridge",
	Confirmations: 10,
}

func TestHTTPProver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/receipt", r.URL.Path)
		var dep Deposit
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&dep))
		if dep.TxID == "empty" {
			_, _ = w.Write([]byte(`{"receipt":""}`))
			return
		}
		assert.Equal(t, testDeposit, dep)
		_, _ = w.Write([]byte(`{"receipt":"deadbeef"}`))
	}))
	defer srv.Close()

	prover := NewHTTPProver(srv.URL+"/", libhttp.RetryPolicy{MaxTries: 1})
	receipt, err := prover.GenerateReceipt(context.Background(), testDeposit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, receipt)

	empty := testDeposit
	empty.TxID = "empty"
	_, err = prover.GenerateReceipt(context.Background(), empty)
	assert.Error(t, err)
}

func TestHTTPProverFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "prover down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProver(srv.URL, libhttp.RetryPolicy{MaxTries: 2, InitialInterval: time.Millisecond}).
		GenerateReceipt(context.Background(), testDeposit)
	var statusErr *libhttp.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestDigestProverDeterministic(t *testing.T) {
	a, err := DigestProver{}.GenerateReceipt(context.Background(), testDeposit)
	require.NoError(t, err)
	b, err := DigestProver{}.GenerateReceipt(context.Background(), testDeposit)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	other := testDeposit
	other.Amount++
	c, err := DigestProver{}.GenerateReceipt(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestLimitPolicy(t *testing.T) {
	policy := DefaultLimitPolicy()
	tests := []struct {
		name string
		in   PolicyInput
		want bool
	}{
		{name: "small deposit", in: PolicyInput{Amount: 1, Timestamp: 100, CurrentTimestamp: 100}, want: true},
		{name: "exactly the limit", in: PolicyInput{Amount: MaxMintAmount, Timestamp: 100, CurrentTimestamp: 100}, want: true},
		{name: "over the limit", in: PolicyInput{Amount: MaxMintAmount + 1, Timestamp: 100, CurrentTimestamp: 100}},
		{name: "an hour ahead", in: PolicyInput{Amount: 1, Timestamp: 3700, CurrentTimestamp: 100}, want: true},
		{name: "too far ahead", in: PolicyInput{Amount: 1, Timestamp: 3701, CurrentTimestamp: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := tt.in.Encode()
			require.NoError(t, err)
			ok, err := policy.Evaluate(context.Background(), ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := policy.Evaluate(context.Background(), []byte("not json"))
	assert.Error(t, err)
}

func TestHTTPPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, err := hex.DecodeString(body["ciphertext"])
		assert.NoError(t, err)
		var in PolicyInput
		assert.NoError(t, json.Unmarshal(raw, &in))
		_ = json.NewEncoder(w).Encode(policyResponse{OK: in.Amount <= MaxMintAmount, Amount: in.Amount})
	}))
	defer srv.Close()

	policy := NewHTTPPolicy(srv.URL, libhttp.RetryPolicy{MaxTries: 1})
	for _, amount := range []uint64{5, MaxMintAmount + 1} {
		ciphertext, err := PolicyInput{Amount: amount}.Encode()
		require.NoError(t, err)
		ok, err := policy.Evaluate(context.Background(), ciphertext)
		require.NoError(t, err)
		assert.Equal(t, amount <= MaxMintAmount, ok)
	}
}
