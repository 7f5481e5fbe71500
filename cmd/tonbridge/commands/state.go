package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/config"
)

// MakeStateCommand returns the command printing the latest trusted state
// and its light client storage cell, the data to deploy the contract with.
func MakeStateCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the latest trusted state",
		RunE: func(cmd *cobra.Command, args []string) error {
			trustedStore, closeStore, err := openTrustedStore(conf)
			if err != nil {
				return err
			}
			defer closeStore()

			s, err := trustedStore.LastTrustedState()
			if err != nil {
				return err
			}
			storage, err := s.ToCell()
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString(outFlag)
			fmt.Fprintln(cmd.ErrOrStderr(), s.String())
			return writeCell(cmd.OutOrStdout(), out, storage)
		},
	}
	cmd.Flags().String(outFlag, "", "file to write the storage cell to (base64 to stdout if empty)")
	return cmd
}
