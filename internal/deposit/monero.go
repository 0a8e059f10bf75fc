package deposit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/xmr-bridge/internal/libhttp"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("monero rpc error %d: %s", e.Code, e.Message)
}

type checkTxKeyParams struct {
	TxID    string `json:"txid"`
	TxKey   string `json:"tx_key"`
	Address string `json:"address"`
}

type checkTxKeyResult struct {
	Confirmations uint64 `json:"confirmations"`
	InPool        bool   `json:"in_pool"`
	Received      uint64 `json:"received"`
}

type rpcResponse[T any] struct {
	Result *T        `json:"result"`
	Error  *RPCError `json:"error"`
}

// MoneroRPC checks transfers with the wallet RPC check_tx_key call.
type MoneroRPC struct {
	url    string
	retry  libhttp.RetryPolicy
	logger *logrus.Entry
	now    func() time.Time
}

func NewMoneroRPC(url string, retry libhttp.RetryPolicy) *MoneroRPC {
	return &MoneroRPC{
		url:    url,
		retry:  retry,
		logger: logrus.WithField("service", "monero-rpc"),
		now:    time.Now,
	}
}

func (m *MoneroRPC) CheckTransaction(ctx context.Context, txID, txKey, address string) (*Check, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  "check_tx_key",
		Params: checkTxKeyParams{
			TxID:    txID,
			TxKey:   txKey,
			Address: address,
		},
	}

	res, err := libhttp.CallWithRetry[rpcResponse[checkTxKeyResult]](ctx, m.retry, http.MethodPost, m.url, nil, req, nil)
	if err != nil {
		return nil, fmt.Errorf("check_tx_key %s: %w", txID, err)
	}
	if res.Error != nil {
		return nil, fmt.Errorf("check_tx_key %s: %w", txID, res.Error)
	}
	if res.Result == nil {
		return nil, fmt.Errorf("check_tx_key %s: empty result", txID)
	}

	m.logger.WithFields(logrus.Fields{
		"txid":          txID,
		"confirmations": res.Result.Confirmations,
		"in_pool":       res.Result.InPool,
		"received":      res.Result.Received,
	}).Debug("checked monero transaction")

	return &Check{
		TxID:          txID,
		TxKey:         txKey,
		Address:       address,
		Received:      res.Result.Received,
		Confirmations: res.Result.Confirmations,
		InPool:        res.Result.InPool,
		CheckedAt:     m.now(),
	}, nil
}
