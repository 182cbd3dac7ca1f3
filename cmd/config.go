package cmd

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sigweihq/wcbroker/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(load loader) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the wcbroker config file",
	}
	configCmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(load))
	return configCmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file holding the defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "where to write the file (default ~/.wcbroker/config.toml)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// configView is the effective configuration as written in a config file
type configView struct {
	Store struct {
		Dir string `toml:"dir"`
	} `toml:"store"`
	Chains struct {
		DirectoryURL string `toml:"directory_url"`
	} `toml:"chains"`
	Explorer struct {
		RateLimit float64 `toml:"rate_limit"`
		Burst     int     `toml:"burst"`
		APIKeySet bool    `toml:"api_key_set"`
	} `toml:"explorer"`
	Auth struct {
		URL string `toml:"url"`
	} `toml:"auth"`
	Broker struct {
		ScanTimeout   string `toml:"scan_timeout"`
		PromptTimeout string `toml:"prompt_timeout"`
	} `toml:"broker"`
	RPC struct {
		ReceiptPollInterval string `toml:"receipt_poll_interval"`
	} `toml:"rpc"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

func newConfigShowCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, environment and defaults merged)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := load(cmd)
			if err != nil {
				return err
			}
			cfg := app.cfg

			var view configView
			view.Store.Dir = cfg.Store.Dir
			view.Chains.DirectoryURL = cfg.Chains.DirectoryURL
			view.Explorer.RateLimit = cfg.Explorer.RateLimit
			view.Explorer.Burst = cfg.Explorer.Burst
			view.Explorer.APIKeySet = cfg.Explorer.APIKey != ""
			view.Auth.URL = cfg.Auth.URL
			view.Broker.ScanTimeout = cfg.Broker.ScanTimeout.String()
			view.Broker.PromptTimeout = cfg.Broker.PromptTimeout.String()
			view.RPC.ReceiptPollInterval = cfg.RPC.ReceiptPollInterval.String()
			view.Log.Level = cfg.Log.Level
			view.Log.Format = cfg.Log.Format
			view.Metrics.Enabled = cfg.Metrics.Enabled
			view.Metrics.Addr = cfg.Metrics.Addr

			data, err := toml.Marshal(view)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
