package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vultisig/xmr-bridge/common"
)

const EnvPrefix = "BRIDGE"

type PeerConfig struct {
	ID        int    `mapstructure:"id"`
	URL       string `mapstructure:"url"`
	PublicKey string `mapstructure:"public_key"`
}

type NetworkConfig struct {
	BindAddress      string       `mapstructure:"bind_address"`
	Port             int          `mapstructure:"port"`
	Peers            []PeerConfig `mapstructure:"peers"`
	TimeoutMs        int          `mapstructure:"timeout_ms"`
	BroadcastRetries uint         `mapstructure:"broadcast_retries"`
}

type MPCConfig struct {
	Threshold          int    `mapstructure:"threshold"`
	TotalParties       int    `mapstructure:"total_parties"`
	KeyGenOutputPath   string `mapstructure:"key_gen_output_path"`
	SigningTimeoutSecs int    `mapstructure:"signing_timeout_secs"`
	Simulated          bool   `mapstructure:"simulated"`
}

type MoneroConfig struct {
	RPCURL                string `mapstructure:"rpc_url"`
	Address               string `mapstructure:"address"`
	Network               string `mapstructure:"network"`
	RequiredConfirmations uint64 `mapstructure:"required_confirmations"`
	CheckIntervalSecs     int    `mapstructure:"check_interval_secs"`
	MaxPendingSecs        int    `mapstructure:"max_pending_secs"`
}

type EthereumConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	PrivateKey      string `mapstructure:"private_key"`
	GasLimit        uint64 `mapstructure:"gas_limit"`
	ChainID         int64  `mapstructure:"chain_id"`
}

type ValidatorConfig struct {
	ValidatorID           int  `mapstructure:"validator_id"`
	HeartbeatIntervalSecs int  `mapstructure:"heartbeat_interval_secs"`
	EnableConsensus       bool `mapstructure:"enable_consensus"`
}

type LedgerConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type StorageConfig struct {
	Passphrase  string `mapstructure:"passphrase"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Prefix    string `mapstructure:"s3_prefix"`
}

type ServiceConfig struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Network   NetworkConfig   `mapstructure:"network"`
	MPC       MPCConfig       `mapstructure:"mpc"`
	Monero    MoneroConfig    `mapstructure:"monero"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Prover    ServiceConfig   `mapstructure:"prover"`
	Policy    ServiceConfig   `mapstructure:"policy"`
}

// DefaultDataDir returns $HOME/.xmr-bridge.
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".xmr-bridge"), nil
}

// New returns a viper instance with defaults and environment overrides
// (BRIDGE_MPC_THRESHOLD, BRIDGE_NETWORK_PORT, ...).
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("network.bind_address", "0.0.0.0")
	v.SetDefault("network.port", 8000)
	v.SetDefault("network.peers", []PeerConfig{})
	v.SetDefault("network.timeout_ms", 5000)
	v.SetDefault("network.broadcast_retries", 3)

	v.SetDefault("mpc.threshold", 2)
	v.SetDefault("mpc.total_parties", 3)
	v.SetDefault("mpc.key_gen_output_path", "")
	v.SetDefault("mpc.signing_timeout_secs", 30)
	v.SetDefault("mpc.simulated", true)

	v.SetDefault("monero.rpc_url", "http://127.0.0.1:38083/json_rpc")
	v.SetDefault("monero.address", "")
	v.SetDefault("monero.network", "stagenet")
	v.SetDefault("monero.required_confirmations", 10)
	v.SetDefault("monero.check_interval_secs", 30)
	v.SetDefault("monero.max_pending_secs", 3600)

	v.SetDefault("ethereum.rpc_url", "")
	v.SetDefault("ethereum.contract_address", "")
	v.SetDefault("ethereum.private_key", "")
	v.SetDefault("ethereum.gas_limit", 500000)
	v.SetDefault("ethereum.chain_id", 11155111)

	v.SetDefault("validator.validator_id", 0)
	v.SetDefault("validator.heartbeat_interval_secs", 30)
	v.SetDefault("validator.enable_consensus", true)

	v.SetDefault("ledger.backend", "bolt")
	v.SetDefault("ledger.path", "")
	v.SetDefault("ledger.redis_addr", "127.0.0.1:6379")
	v.SetDefault("ledger.redis_password", "")
	v.SetDefault("ledger.redis_db", 0)

	v.SetDefault("storage.passphrase", "")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_access_key", "")
	v.SetDefault("storage.s3_secret_key", "")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_prefix", "")

	v.SetDefault("prover.url", "")
	v.SetDefault("policy.url", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.MPC.KeyGenOutputPath == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.MPC.KeyGenOutputPath = dir
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(cfg.MPC.KeyGenOutputPath, fmt.Sprintf("ledger_%d.db", cfg.Validator.ValidatorID))
	}
	return &cfg, nil
}

// Validate checks the parameters every command depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.MPC.Threshold < 1 {
		errs = append(errs, fmt.Errorf("mpc.threshold must be at least 1, got %d", c.MPC.Threshold))
	}
	if c.MPC.Threshold > c.MPC.TotalParties {
		errs = append(errs, fmt.Errorf("mpc.threshold %d exceeds mpc.total_parties %d", c.MPC.Threshold, c.MPC.TotalParties))
	}
	if c.Validator.ValidatorID < 0 || c.Validator.ValidatorID >= c.MPC.TotalParties {
		errs = append(errs, fmt.Errorf("validator.validator_id %d out of range [0,%d)", c.Validator.ValidatorID, c.MPC.TotalParties))
	}
	if _, err := common.MoneroFromNetwork(c.Monero.Network); err != nil {
		errs = append(errs, err)
	}
	switch c.Ledger.Backend {
	case "bolt", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend))
	}
	if c.Monero.CheckIntervalSecs <= 0 {
		errs = append(errs, fmt.Errorf("monero.check_interval_secs must be positive"))
	}
	if c.Validator.HeartbeatIntervalSecs <= 0 {
		errs = append(errs, fmt.Errorf("validator.heartbeat_interval_secs must be positive"))
	}
	for _, p := range c.Network.Peers {
		if p.ID < 0 || p.ID >= c.MPC.TotalParties {
			errs = append(errs, fmt.Errorf("peer id %d out of range", p.ID))
		}
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("peer %d has no url", p.ID))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) MoneroChain() (common.Chain, error) {
	return common.MoneroFromNetwork(c.Monero.Network)
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Monero.CheckIntervalSecs) * time.Second
}

func (c *Config) MaxPending() time.Duration {
	return time.Duration(c.Monero.MaxPendingSecs) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Validator.HeartbeatIntervalSecs) * time.Second
}

func (c *Config) SigningTimeout() time.Duration {
	return time.Duration(c.MPC.SigningTimeoutSecs) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Network.TimeoutMs) * time.Millisecond
}

func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Network.BindAddress, c.Network.Port)
}
