package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/decoder"
	"github.com/sigweihq/wcbroker/pkg/utils"
	"github.com/spf13/cobra"
)

func newDecodeCmd(load loader) *cobra.Command {
	var (
		chainID     int64
		explorerURL string
		to          string
		data        string
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode contract call data with the ABI published on the chain's explorer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !utils.IsAddress(to) {
				return fmt.Errorf("--to must be a contract address, got %q", to)
			}

			app, err := load(cmd)
			if err != nil {
				return err
			}

			if explorerURL == "" {
				chain, err := app.registry.Chain(cmd.Context(), chainID)
				if err != nil {
					return err
				}
				explorerURL = chains.ExplorerURL(chain)
			}
			if explorerURL == "" {
				return fmt.Errorf("chain %d has no explorer; pass --explorer", chainID)
			}

			abiJSON, err := app.explorer.FetchABI(cmd.Context(), explorerURL, to)
			if err != nil {
				return err
			}
			if abiJSON == "" {
				return fmt.Errorf("no verified abi for %s on %s", to, explorerURL)
			}
			contractABI, err := abi.JSON(strings.NewReader(abiJSON))
			if err != nil {
				return fmt.Errorf("parse abi: %w", err)
			}

			decoded := decoder.DecodeCall(contractABI, data)
			out := struct {
				Contract string `json:"contract"`
				URL      string `json:"url"`
				Call     any    `json:"call"`
			}{
				Contract: to,
				URL:      decoder.AddressURL(explorerURL, to),
				Call:     decoded,
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Int64Var(&chainID, "chain", 1, "chain whose explorer is asked for the abi")
	cmd.Flags().StringVar(&explorerURL, "explorer", "", "explorer base URL (overrides --chain)")
	cmd.Flags().StringVar(&to, "to", "", "contract address")
	cmd.Flags().StringVar(&data, "data", "", "0x-prefixed call data")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
