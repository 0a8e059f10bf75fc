package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const bridgeABI = `[{
	"name": "confirmMintWithSig",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "recipient", "type": "address"},
		{"name": "amount", "type": "uint256"},
		{"name": "depositId", "type": "bytes32"},
		{"name": "commitment", "type": "bytes32"},
		{"name": "receipt", "type": "bytes"},
		{"name": "v", "type": "uint8"},
		{"name": "r", "type": "bytes32"},
		{"name": "s", "type": "bytes32"}
	],
	"outputs": []
}]`

const mintMethod = "confirmMintWithSig"

const DefaultGasLimit = 300_000

func parseBridgeABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(bridgeABI))
}

// Client is the subset of ethclient.Client used to send mints.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum rpc %s: %w", rpcURL, err)
	}
	return client, nil
}

type EthereumOptions struct {
	Client   Client
	Contract string
	// PrivateKey is the hex key of the account paying for gas.
	PrivateKey string
	ChainID    *big.Int
	GasLimit   uint64
}

// EthereumSubmitter calls confirmMintWithSig on the bridge contract.
type EthereumSubmitter struct {
	client   Client
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer
	gasLimit uint64
	abi      abi.ABI
	logger   *logrus.Entry
}

func NewEthereumSubmitter(opts EthereumOptions) (*EthereumSubmitter, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("ethereum client is required")
	}
	if !common.IsHexAddress(opts.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", opts.Contract)
	}
	if opts.ChainID == nil || opts.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid submitter private key: %w", err)
	}
	parsed, err := parseBridgeABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse bridge abi: %w", err)
	}
	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	return &EthereumSubmitter{
		client:   opts.Client,
		contract: common.HexToAddress(opts.Contract),
		key:      key,
		from:     from,
		signer:   types.LatestSignerForChainID(opts.ChainID),
		gasLimit: gasLimit,
		abi:      parsed,
		logger: logrus.WithFields(logrus.Fields{
			"service":  "submitter",
			"contract": opts.Contract,
			"from":     from.Hex(),
		}),
	}, nil
}

func (s *EthereumSubmitter) Submit(ctx context.Context, mint Mint) (string, error) {
	if err := mint.validate(); err != nil {
		return "", err
	}
	data, err := s.abi.Pack(mintMethod, mint.callArgs()...)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", mintMethod, err)
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.contract,
		Value:    big.NewInt(0),
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	s.logger.WithFields(logrus.Fields{
		"tx_hash":    hash,
		"nonce":      nonce,
		"amount":     mint.Amount,
		"deposit_id": common.Hash(mint.DepositID).Hex(),
	}).Info("mint submitted")
	return hash, nil
}
