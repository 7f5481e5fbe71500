package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/config"
	"github.com/tonred/ton-trustless-bridge/libs/log"
)

// MakeInitCommand returns the command that writes the default config and,
// given a blocks directory, derives the first trusted state from the
// genesis key block.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the config and the trusted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("Config ready", "path", config.ConfigFilePath(conf.RootDir))

			blocksDir, _ := cmd.Flags().GetString(blocksDirFlag)
			if blocksDir == "" {
				return nil
			}
			if cmd.Flags().Changed("genesis-seqno") {
				conf.Light.GenesisSeqno, _ = cmd.Flags().GetUint32("genesis-seqno")
			}
			if conf.Light.GenesisSeqno == 0 {
				return fmt.Errorf("genesis seqno is not set")
			}

			c, closeStore, err := newClient(cmd.Context(), cmd, conf, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			s := c.TrustedState()
			logger.Info("Trusted state initialized", "seqno", s.Seqno, "since", s.UTimeSince, "until", s.UTimeUntil)
			fmt.Fprintln(cmd.OutOrStdout(), s.String())
			return nil
		},
	}
	addClientFlags(cmd)
	cmd.Flags().Uint32("genesis-seqno", conf.Light.GenesisSeqno, "seqno of the key block the light client was deployed with")
	return cmd
}
