package commands

import (
	"encoding/hex"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tonred/ton-trustless-bridge/block"
	"github.com/tonred/ton-trustless-bridge/types"
)

type validatorJSON struct {
	Slot        int    `json:"slot"`
	PubKey      string `json:"pub_key"`
	NodeIDShort string `json:"node_id_short"`
	Weight      uint64 `json:"weight"`
	ADNLAddr    string `json:"adnl_addr,omitempty"`
}

type validatorSetJSON struct {
	UTimeSince uint32          `json:"utime_since"`
	UTimeUntil uint32          `json:"utime_until"`
	Total      uint16          `json:"total"`
	Main       uint16          `json:"main"`
	Cutoff     string          `json:"cutoff"`
	Validators []validatorJSON `json:"validators"`
}

// MakeValidatorsCommand returns the command listing the main validators of
// a key block read from a file.
func MakeValidatorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validators [key-block.boc]",
		Short: "Show the main validators of a key block and their cutoff weight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readCell(args[0])
			if err != nil {
				return err
			}
			param, err := block.GetConfigParam(b, types.ValidatorSetConfigParam)
			if err != nil {
				return err
			}
			vals, err := types.ParseConfigParamValidators(param, false)
			if err != nil {
				return err
			}
			_, cutoff, err := types.PrepareValidatorsList(int(vals.Main), vals.ListCell)
			if err != nil {
				return err
			}

			res := validatorSetJSON{
				UTimeSince: vals.UTimeSince,
				UTimeUntil: vals.UTimeUntil,
				Total:      vals.Total,
				Main:       vals.Main,
				Cutoff:     cutoff.String(),
			}
			for i, v := range vals.MainValidators() {
				res.Validators = append(res.Validators, validatorJSON{
					Slot:        i,
					PubKey:      hex.EncodeToString(v.PubKey.Bytes()),
					NodeIDShort: hex.EncodeToString(v.NodeIDShort()),
					Weight:      v.Weight,
					ADNLAddr:    hex.EncodeToString(v.ADNLAddr),
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
