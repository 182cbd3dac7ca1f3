package cmd

import (
	"encoding/json"

	"github.com/sigweihq/wcbroker/pkg/utils"
	"github.com/spf13/cobra"
)

func newURICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uri <wc-uri>",
		Short: "Validate a WalletConnect pairing URI and print its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := utils.ParseURI(args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"topic":   parsed.Topic,
				"version": parsed.Version,
				"bridge":  parsed.Bridge,
				"key":     parsed.Key,
			})
		},
	}
}
