package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vultisig/xmr-bridge/internal/tss"
)

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate this validator's key share",
	Long: `Generate the key share of the validator selected by --index and write it to
<key_gen_output_path>/keys/keys_<index>_<party>.json. With --all the shares of every
validator are written, which is only useful for local test networks.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().Bool("all", false, "Write the shares of every validator")
	keygenCmd.Flags().Int("threshold", 0, "Signing threshold (overrides mpc.threshold)")
	keygenCmd.Flags().Int("parties", 0, "Number of validators (overrides mpc.total_parties)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if t, _ := cmd.Flags().GetInt("threshold"); t > 0 {
		settings.Set("mpc.threshold", t)
	}
	if n, _ := cmd.Flags().GetInt("parties"); n > 0 {
		settings.Set("mpc.total_parties", n)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.MPC.Simulated {
		return fmt.Errorf("only simulated key generation is available, set mpc.simulated")
	}
	network, err := cfg.MoneroChain()
	if err != nil {
		return err
	}
	store, err := openShareStorage(cfg)
	if err != nil {
		return err
	}

	gen, err := tss.NewGenerator(cfg.MPC.Threshold, cfg.MPC.TotalParties, network)
	if err != nil {
		return err
	}

	indexes := []int{cfg.Validator.ValidatorID}
	if all, _ := cmd.Flags().GetBool("all"); all {
		indexes = indexes[:0]
		for i := 0; i < cfg.MPC.TotalParties; i++ {
			indexes = append(indexes, i)
		}
	}

	var joint *tss.JointKeys
	for _, idx := range indexes {
		share, keys, err := gen.Generate(idx)
		if err != nil {
			return fmt.Errorf("failed to generate share %d: %w", idx, err)
		}
		path, err := store.SaveShare(share)
		if err != nil {
			return err
		}
		joint = keys
		logrus.WithFields(logrus.Fields{
			"validator_index": idx,
			"party_index":     share.PartyIndex,
			"path":            path,
		}).Info("key share written")
		fmt.Printf("Share %s written to %s\n", share.Label(), path)
	}

	fmt.Printf("Threshold: %d of %d\n", cfg.MPC.Threshold, cfg.MPC.TotalParties)
	fmt.Printf("Ethereum address: %s\n", joint.EthereumAddress)
	fmt.Printf("Monero address: %s\n", joint.MoneroAddress)
	return nil
}
