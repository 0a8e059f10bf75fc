package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vultisig/xmr-bridge/common"
	"github.com/vultisig/xmr-bridge/internal/chain"
	"github.com/vultisig/xmr-bridge/internal/config"
	"github.com/vultisig/xmr-bridge/internal/deposit"
	"github.com/vultisig/xmr-bridge/internal/ledger"
	"github.com/vultisig/xmr-bridge/internal/libhttp"
	"github.com/vultisig/xmr-bridge/internal/network"
	"github.com/vultisig/xmr-bridge/internal/proof"
	"github.com/vultisig/xmr-bridge/internal/signing"
	"github.com/vultisig/xmr-bridge/internal/tss"
	"github.com/vultisig/xmr-bridge/internal/validator"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one validator",
	Long: `Run the validator selected by --index. It needs its own share file and the combined
bridge keys, serves the peer and claim API on network.port and runs until interrupted.

With mpc.simulated the validators broadcast their raw signing shares in SIGNED messages,
so any threshold of those messages reveals the joint Ethereum key. Run simulated
validators only on a closed test network and never ship their message logs or traffic
captures off it.`,
	RunE: runValidator,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("port", 0, "Listen port (overrides network.port)")
	bindFlag("network.port", runCmd, "port")
}

func runValidator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.MPC.Simulated {
		return fmt.Errorf("only the simulated signer is available, set mpc.simulated")
	}
	id := cfg.Validator.ValidatorID
	logger := logrus.WithFields(logrus.Fields{"service": "run", "validator_id": id})

	store, err := openShareStorage(cfg)
	if err != nil {
		return err
	}
	share, err := store.LoadShare(id)
	if err != nil {
		return fmt.Errorf("failed to load share, run keygen first: %w", err)
	}
	keys, err := store.LoadBridgeKeys()
	if err != nil {
		return fmt.Errorf("failed to load bridge keys, run combine first: %w", err)
	}
	if keys.Threshold != cfg.MPC.Threshold || keys.TotalValidators != cfg.MPC.TotalParties {
		return fmt.Errorf("bridge keys are %d of %d, config is %d of %d",
			keys.Threshold, keys.TotalValidators, cfg.MPC.Threshold, cfg.MPC.TotalParties)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := validator.NewMetrics()
	transport, err := newTransport(cfg, share, keys, metrics)
	if err != nil {
		return err
	}

	publicShares := make(map[int][]byte, len(keys.Validators))
	for _, h := range keys.Validators {
		publicShares[h.PartyIndex] = h.EthPublicShare
	}
	signer, err := signing.NewSimulatedSigner(share, keys.EthereumPublicKey, publicShares)
	if err != nil {
		return err
	}

	bridgeAddress := cfg.Monero.Address
	if bridgeAddress == "" {
		bridgeAddress = keys.MoneroAddress
	}
	coordinator, err := signing.NewCoordinator(signing.CoordinatorOptions{
		Gate: signing.Gate{
			MinConfirmations: cfg.Monero.RequiredConfirmations,
			BridgeAddress:    bridgeAddress,
		},
		Signer:         signer,
		Transport:      transport,
		JointPublicKey: keys.EthereumPublicKey,
		Timeout:        cfg.SigningTimeout(),
		QuorumWait:     metrics.QuorumWait,
	})
	if err != nil {
		return err
	}

	ledgerStore, err := ledger.Open(ledger.Options{
		Backend:       cfg.Ledger.Backend,
		Path:          cfg.Ledger.Path,
		RedisAddr:     cfg.Ledger.RedisAddr,
		RedisPassword: cfg.Ledger.RedisPassword,
		RedisDB:       cfg.Ledger.RedisDB,
		Namespace:     fmt.Sprintf("validator_%d", id),
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledgerStore.Close()

	submitter, closeSubmitter, err := newSubmitter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSubmitter()

	retry := retryPolicy(cfg)
	var prover proof.Prover = proof.DigestProver{}
	if cfg.Prover.URL != "" {
		prover = proof.NewHTTPProver(cfg.Prover.URL, retry)
	}
	var policy proof.Policy = proof.DefaultLimitPolicy()
	if cfg.Policy.URL != "" {
		policy = proof.NewHTTPPolicy(cfg.Policy.URL, retry)
	}

	node, err := validator.New(validator.Options{
		ValidatorID:       id,
		TotalParties:      cfg.MPC.TotalParties,
		ListenAddress:     cfg.ListenAddress(),
		Port:              cfg.Network.Port,
		BridgeAddress:     bridgeAddress,
		EthereumAddress:   keys.EthereumAddress,
		CheckInterval:     cfg.CheckInterval(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		MaxPending:        cfg.MaxPending(),
		SigningTimeout:    cfg.SigningTimeout(),
		RelayClaims:       cfg.Validator.EnableConsensus,
	}, validator.Dependencies{
		Transport:   transport,
		Coordinator: coordinator,
		Ledger:      ledgerStore,
		Source:      deposit.NewMoneroRPC(cfg.Monero.RPCURL, retry),
		Submitter:   submitter,
		Prover:      prover,
		Policy:      policy,
		Metrics:     metrics,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"listen":         cfg.ListenAddress(),
		"peers":          len(cfg.Network.Peers),
		"bridge_address": bridgeAddress,
		"eth_address":    keys.EthereumAddress,
	}).Info("starting validator")
	return node.Run(ctx)
}

func retryPolicy(cfg *config.Config) libhttp.RetryPolicy {
	retry := libhttp.DefaultRetryPolicy()
	if cfg.Network.BroadcastRetries > 0 {
		retry.MaxTries = cfg.Network.BroadcastRetries
	}
	return retry
}

// newTransport signs outgoing messages with the validator's identity key and verifies
// peers against the identity keys published in the bridge keys unless the config
// names one.
func newTransport(cfg *config.Config, share *tss.KeyShare, keys *tss.BridgeKeys, metrics *validator.Metrics) (*network.Transport, error) {
	identity, err := crypto.ToECDSA(share.EthPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid identity key in share: %w", err)
	}
	transport := network.NewTransport(network.Options{
		ValidatorID:       cfg.Validator.ValidatorID,
		TotalParties:      cfg.MPC.TotalParties,
		IdentityKey:       identity,
		RequestTimeout:    cfg.RequestTimeout(),
		Retry:             retryPolicy(cfg),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		BroadcastFailures: metrics.BroadcastFailures,
	})

	for _, p := range cfg.Network.Peers {
		var publicKey []byte
		if p.PublicKey != "" {
			publicKey, err = common.DecodeHex(p.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("peer %d: invalid public key: %w", p.ID, err)
			}
		} else if h, ok := keys.Holder(p.ID); ok {
			publicKey = h.IdentityKey
		}
		if err := transport.RegisterPeer(p.ID, p.URL, publicKey); err != nil {
			return nil, err
		}
	}
	return transport, nil
}

// newSubmitter dials the Ethereum node when one is configured and falls back to the
// dry-run submitter otherwise.
func newSubmitter(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (chain.Submitter, func(), error) {
	if cfg.Ethereum.RPCURL == "" || cfg.Ethereum.PrivateKey == "" {
		logger.Warn("ethereum.rpc_url or ethereum.private_key not set, mints are not sent")
		sub, err := chain.NewDryRunSubmitter()
		return sub, func() {}, err
	}
	client, err := chain.Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	sub, err := chain.NewEthereumSubmitter(chain.EthereumOptions{
		Client:     client,
		Contract:   cfg.Ethereum.ContractAddress,
		PrivateKey: cfg.Ethereum.PrivateKey,
		ChainID:    big.NewInt(cfg.Ethereum.ChainID),
		GasLimit:   cfg.Ethereum.GasLimit,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return sub, client.Close, nil
}
