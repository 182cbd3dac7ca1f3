package config

import (
	"fmt"
	"log/slog"

	"github.com/sigweihq/wcbroker/pkg/auth"
	"github.com/sigweihq/wcbroker/pkg/broker"
	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/chains/evm"
	"github.com/sigweihq/wcbroker/pkg/decoder"
	"github.com/sigweihq/wcbroker/pkg/explorer"
	"github.com/sigweihq/wcbroker/pkg/store"
)

var (
	_ broker.Authenticator = (*auth.Client)(nil)
	_ decoder.ABIFetcher   = (*explorer.Client)(nil)
)

// NewExplorerClient builds the ABI client with the explorer section's key and rate limit
func (c *Config) NewExplorerClient(logger *slog.Logger) *explorer.Client {
	return explorer.NewClient(logger,
		explorer.WithAPIKey(c.Explorer.APIKey),
		explorer.WithRateLimit(c.Explorer.RateLimit, c.Explorer.Burst),
	)
}

// NewChainRegistry builds a registry reading from chains.directory_url
func (c *Config) NewChainRegistry(logger *slog.Logger) *chains.Registry {
	return evm.NewChainRegistry(logger, c.Chains.DirectoryURL, nil)
}

// BrokerConfig fills everything the configuration decides for a broker: the file store,
// chain registry, explorer ABI client, timeouts and, when auth.url is set, the wallet
// login. Connectors and Gateway are left to the caller.
func (c *Config) BrokerConfig(wallet broker.Wallet, logger *slog.Logger) (broker.Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fileStore, err := store.NewFileStore(c.Store.Dir)
	if err != nil {
		return broker.Config{}, fmt.Errorf("open store: %w", err)
	}

	cfg := broker.Config{
		Wallet:              wallet,
		Registry:            c.NewChainRegistry(logger),
		Store:               fileStore,
		ABIs:                c.NewExplorerClient(logger),
		Logger:              logger,
		ScanTimeout:         c.Broker.ScanTimeout,
		PromptTimeout:       c.Broker.PromptTimeout,
		ReceiptPollInterval: c.RPC.ReceiptPollInterval,
	}

	if c.Auth.URL != "" {
		client, err := auth.NewClient(c.Auth.URL, nil, wallet, logger)
		if err != nil {
			return broker.Config{}, err
		}
		cfg.Auth = client
		cfg.AuthRetryable = auth.IsRetryable
	}
	return cfg, nil
}
