package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/cell"
	"github.com/tonred/ton-trustless-bridge/proof"
	"github.com/tonred/ton-trustless-bridge/prune"
)

func printStats(cmd *cobra.Command, name string, c *cell.Cell) {
	st := prune.CalcStats(c, true)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d cells, %d bits, %d pruned branches, %d bytes as boc\n",
		name, st.Cells, st.Bits, st.Pruned, len(c.ToBOC()))
}

// MakePrepareBlockCommand returns the command proving transactions of a
// block read from a file.
func MakePrepareBlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare-block [block.boc] [tx-hash...]",
		Short: "Prepare a block proof keeping the given transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readCell(args[0])
			if err != nil {
				return err
			}
			hashes, err := parseHashes(args[1:])
			if err != nil {
				return err
			}
			for _, h := range hashes {
				if _, err := block.FindTransaction(b, h); err != nil {
					return err
				}
			}

			p, err := proof.PrepareBlock(b, hashes)
			if err != nil {
				return err
			}
			printStats(cmd, "block proof", p)

			out, _ := cmd.Flags().GetString(outFlag)
			return writeCell(cmd.OutOrStdout(), out, p)
		},
	}
	cmd.Flags().String(outFlag, "", "file to write the proof to (base64 to stdout if empty)")
	return cmd
}

// MakePrepareKeyBlockCommand returns the command proving the validator set
// of a key block read from a file.
func MakePrepareKeyBlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare-key-block [block.boc]",
		Short: "Prepare a key block proof keeping the validator set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readCell(args[0])
			if err != nil {
				return err
			}
			p, err := proof.PrepareKeyBlock(b)
			if err != nil {
				return err
			}
			printStats(cmd, "key block proof", p)

			out, _ := cmd.Flags().GetString(outFlag)
			return writeCell(cmd.OutOrStdout(), out, p)
		},
	}
	cmd.Flags().String(outFlag, "", "file to write the proof to (base64 to stdout if empty)")
	return cmd
}

// MakePrepareAccountCommand returns the command proving the data of an
// account read from a file.
func MakePrepareAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare-account [account.boc]",
		Short: "Prepare an account state proof keeping the data hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := readCell(args[0])
			if err != nil {
				return err
			}
			p, err := proof.PrepareAccountState(acc)
			if err != nil {
				return err
			}
			printStats(cmd, "account proof", p)

			out, _ := cmd.Flags().GetString(outFlag)
			return writeCell(cmd.OutOrStdout(), out, p)
		},
	}
	cmd.Flags().String(outFlag, "", "file to write the proof to (base64 to stdout if empty)")
	return cmd
}
