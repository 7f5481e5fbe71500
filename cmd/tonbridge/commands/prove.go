package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/config"
	"github.com/tonred/ton-trustless-bridge/libs/log"
)

// MakeProveTxCommand returns the command preparing a check_transaction
// message for the transaction checker.
func MakeProveTxCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prove-tx [seqno] [tx-hash]",
		Short: "Prepare a check_transaction message for a masterchain transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seqno uint32
			if _, err := fmt.Sscan(args[0], &seqno); err != nil {
				return fmt.Errorf("seqno: %w", err)
			}
			hashes, err := parseHashes(args[1:])
			if err != nil {
				return err
			}
			queryID, _ := cmd.Flags().GetUint64(queryIDFlag)

			c, closeStore, err := newClient(cmd.Context(), cmd, conf, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			check, err := c.PrepareTransactionProof(cmd.Context(), seqno, hashes[0], queryID)
			if err != nil {
				return err
			}
			logger.Info("Prepared transaction proof", "seqno", seqno, "lt", check.Transaction.LT)

			out, _ := cmd.Flags().GetString(outFlag)
			return writeCell(cmd.OutOrStdout(), out, check.Body)
		},
	}
	addClientFlags(cmd)
	cmd.Flags().String(outFlag, "", "file to write the message body to (base64 to stdout if empty)")
	return cmd
}

// MakeCheckBlockCommand returns the command preparing a check_block message
// for the light client.
func MakeCheckBlockCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-block [seqno]",
		Short: "Prepare a check_block message for a masterchain block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seqno uint32
			if _, err := fmt.Sscan(args[0], &seqno); err != nil {
				return fmt.Errorf("seqno: %w", err)
			}
			queryID, _ := cmd.Flags().GetUint64(queryIDFlag)

			c, closeStore, err := newClient(cmd.Context(), cmd, conf, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			check, err := c.PrepareBlockCheck(cmd.Context(), seqno, queryID, nil)
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString(outFlag)
			return writeCell(cmd.OutOrStdout(), out, check.Body)
		},
	}
	addClientFlags(cmd)
	cmd.Flags().String(outFlag, "", "file to write the message body to (base64 to stdout if empty)")
	return cmd
}
