package deposit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/xmr-bridge/internal/libhttp"
)

const testRecipient = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"

func TestClaimOperationHash(t *testing.T) {
	a := NewClaim("tx", "key", 100, testRecipient, time.Unix(10, 0))
	b := NewClaim("tx", "other-key", 100, testRecipient, time.Unix(20, 0))
	c := NewClaim("tx", "key", 101, testRecipient, time.Unix(10, 0))

	assert.Equal(t, a.OperationHash(), b.OperationHash(), "hash covers txid and amount only")
	assert.NotEqual(t, a.OperationHash(), c.OperationHash())
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.OperationHashHex(), 64)
}

func TestClaimValidate(t *testing.T) {
	valid := NewClaim("tx", "key", 100, testRecipient, time.Unix(10, 0))
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Claim)
	}{
		{name: "no txid", mutate: func(c *Claim) { c.TxID = "" }},
		{name: "no tx key", mutate: func(c *Claim) { c.TxKey = "" }},
		{name: "zero amount", mutate: func(c *Claim) { c.Amount = 0 }},
		{name: "bad recipient", mutate: func(c *Claim) { c.Recipient = "monero" }},
		{name: "no timestamp", mutate: func(c *Claim) { c.RequestedAt = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestMoneroRPCCheckTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "check_tx_key", req.Method)

		params := req.Params.(map[string]any)
		if params["txid"] == "bad" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","error":{"code":-8,"message":"TX not found"}}`))
			return
		}
		assert.Equal(t, "key", params["tx_key"])
		assert.Equal(t, "5bridge", params["address"])
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","result":{"confirmations":12,"in_pool":false,"received":1000000000000}}`))
	}))
	defer srv.Close()

	rpc := NewMoneroRPC(srv.URL, libhttp.RetryPolicy{MaxTries: 1})

	check, err := rpc.CheckTransaction(context.Background(), "good", "key", "5bridge")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), check.Confirmations)
	assert.Equal(t, uint64(1000000000000), check.Received)
	assert.False(t, check.InPool)
	assert.Equal(t, "5bridge", check.Address)

	_, err = rpc.CheckTransaction(context.Background(), "bad", "key", "5bridge")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -8, rpcErr.Code)
}

func TestQueue(t *testing.T) {
	q, err := NewQueue(2)
	require.NoError(t, err)

	a := NewClaim("a", "k", 1, testRecipient, time.Unix(20, 0))
	b := NewClaim("b", "k", 1, testRecipient, time.Unix(10, 0))

	assert.True(t, q.Add(a))
	assert.False(t, q.Add(a), "same operation is queued once")
	assert.True(t, q.Add(b))

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].TxID)

	q.Done(a.OperationHashHex())
	assert.Equal(t, 1, q.Len())
	assert.False(t, q.Add(a), "recently seen claims stay deduplicated")
}
