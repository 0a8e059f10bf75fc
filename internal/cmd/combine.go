package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vultisig/xmr-bridge/internal/config"
	"github.com/vultisig/xmr-bridge/internal/storage"
	"github.com/vultisig/xmr-bridge/internal/tss"
)

// combineCmd represents the combine command
var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Combine every validator's share into the bridge keys",
	Long: `Read every share file under <key_gen_output_path>/keys, derive the joint Ethereum and
Monero identities, check that every share agrees on them and write the bridge keys as a
new epoch. An existing epoch is never overwritten.`,
	RunE: runCombine,
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the current bridge keys",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(combineCmd)
	rootCmd.AddCommand(infoCmd)

	combineCmd.Flags().Uint64("epoch", 0, "Epoch to write (default: latest + 1)")
	combineCmd.Flags().Bool("publish", false, "Upload the bridge keys to the configured S3 bucket")
	infoCmd.Flags().Uint64("epoch", 0, "Epoch to print (default: current)")
}

func runCombine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openShareStorage(cfg)
	if err != nil {
		return err
	}

	shares, err := store.ListShares()
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		return fmt.Errorf("no shares found under %s: %w", cfg.MPC.KeyGenOutputPath, tss.ErrEmptyShareSet)
	}

	epoch, _ := cmd.Flags().GetUint64("epoch")
	if epoch == 0 {
		latest, err := store.LatestEpoch()
		if err != nil {
			return err
		}
		epoch = latest + 1
	}

	keys, err := tss.BuildBridgeKeys(shares, epoch, time.Now())
	if err != nil {
		return fmt.Errorf("failed to combine %d shares: %w", len(shares), err)
	}
	path, err := store.SaveBridgeKeys(keys)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"epoch":  keys.Epoch,
		"shares": len(shares),
		"path":   path,
	}).Info("bridge keys written")

	if publish, _ := cmd.Flags().GetBool("publish"); publish {
		if err := publishBridgeKeys(cmd, cfg, keys); err != nil {
			return err
		}
	}

	printBridgeKeys(keys)
	return nil
}

func publishBridgeKeys(cmd *cobra.Command, cfg *config.Config, keys *tss.BridgeKeys) error {
	publisher, err := storage.NewS3Publisher(cmd.Context(), storage.S3Config{
		Endpoint:  cfg.Storage.S3Endpoint,
		AccessKey: cfg.Storage.S3AccessKey,
		SecretKey: cfg.Storage.S3SecretKey,
		Bucket:    cfg.Storage.S3Bucket,
		Region:    cfg.Storage.S3Region,
		Prefix:    cfg.Storage.S3Prefix,
	})
	if err != nil {
		return err
	}
	uploaded, err := publisher.Publish(cmd.Context(), keys)
	if err != nil {
		return fmt.Errorf("failed to publish bridge keys: %w", err)
	}
	for _, key := range uploaded {
		fmt.Printf("Uploaded s3://%s/%s\n", cfg.Storage.S3Bucket, key)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openShareStorage(cfg)
	if err != nil {
		return err
	}

	var keys *tss.BridgeKeys
	if epoch, _ := cmd.Flags().GetUint64("epoch"); epoch > 0 {
		keys, err = store.LoadBridgeKeysEpoch(epoch)
	} else {
		keys, err = store.LoadBridgeKeys()
	}
	if err != nil {
		return fmt.Errorf("failed to load bridge keys, run combine first: %w", err)
	}
	printBridgeKeys(keys)
	return nil
}

func printBridgeKeys(keys *tss.BridgeKeys) {
	fmt.Println("Bridge keys")
	fmt.Println("===========")
	fmt.Printf("Epoch:              %d\n", keys.Epoch)
	fmt.Printf("Created:            %s\n", keys.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Threshold:          %d of %d\n", keys.Threshold, keys.TotalValidators)
	fmt.Printf("Ethereum address:   %s\n", keys.EthereumAddress)
	fmt.Printf("Ethereum pubkey:    %s\n", keys.EthereumPublicKey)
	fmt.Printf("Monero network:     %s\n", keys.MoneroNetwork)
	fmt.Printf("Monero address:     %s\n", keys.MoneroAddress)
	fmt.Printf("Monero spend key:   %s\n", keys.MoneroPublicKey)
	fmt.Printf("Monero view key:    %s\n", keys.MoneroViewPublicKey)
	fmt.Println()
	fmt.Println("Validators:")
	for _, h := range keys.Validators {
		fmt.Printf("  %-14s index=%d party=%d identity=%s\n", h.Label, h.ValidatorIndex, h.PartyIndex, h.IdentityKey)
	}
}
