package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/spf13/cobra"
)

func newChainsCmd(load loader) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chains [chain-id]",
		Short: "List the supported chains, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load(cmd)
			if err != nil {
				return err
			}

			var list []types.Chain
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 0, 64)
				if err != nil {
					return fmt.Errorf("invalid chain id %q: %w", args[0], err)
				}
				chain, err := app.registry.Chain(cmd.Context(), id)
				if err != nil {
					return err
				}
				list = []types.Chain{chain}
			} else {
				list, err = app.registry.Chains(cmd.Context())
				if err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return writeChains(cmd, list)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeChains(cmd *cobra.Command, list []types.Chain) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRPC\tEXPLORER")
	for _, chain := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", chain.ChainID, chain.Name, orDash(chains.RPCURL(chain)), orDash(chains.ExplorerURL(chain)))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
