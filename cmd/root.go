package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "wcbroker",
		Short:         "wcbroker: inspect the state of a WalletConnect wallet broker",
		Long:          "wcbroker lists the chains the broker supports, the transactions waiting for a receipt, and lets you try out pairing URIs, request classification and call data decoding from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.wcbroker/config.toml)")

	load := func(cmd *cobra.Command) (*app, error) {
		return wireApp(configPath, cmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(load),
		newChainsCmd(load),
		newPendingCmd(load),
		newURICmd(),
		newClassifyCmd(),
		newDecodeCmd(load),
	)

	return rootCmd
}
