package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vultisig/xmr-bridge/internal/config"
	"github.com/vultisig/xmr-bridge/internal/storage"
)

var settings = config.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bridge-validator",
	Short: "Threshold validator for the Monero to EVM bridge",
	Long: `bridge-validator generates and combines the key shares of a T-of-N validator set
and runs one validator of that set. A running validator watches Monero deposits,
signs mint authorizations jointly with its peers and submits the mint.
Key shares and the combined bridge keys are stored under $HOME/.xmr-bridge unless
mpc.key_gen_output_path says otherwise.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (toml, yaml or json)")
	rootCmd.PersistentFlags().Int("index", 0, "Validator index")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	_ = settings.BindPFlag("validator.validator_id", rootCmd.PersistentFlags().Lookup("index"))
}

// initConfig initializes configuration
func initConfig() {
	// Set up logging
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if debug, _ := rootCmd.PersistentFlags().GetBool("debug"); debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(settings, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openShareStorage(cfg *config.Config) (*storage.LocalShareStorage, error) {
	return storage.NewLocalShareStorage(cfg.MPC.KeyGenOutputPath, cfg.Storage.Passphrase)
}

// bindFlag lets a command flag override a config key.
func bindFlag(key string, cmd *cobra.Command, name string) {
	if err := settings.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}
