package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/chains/evm"
	"github.com/sigweihq/wcbroker/pkg/config"
	"github.com/sigweihq/wcbroker/pkg/explorer"
	"github.com/sigweihq/wcbroker/pkg/metrics"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/spf13/cobra"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.FileStore
	registry *chains.Registry
	explorer *explorer.Client
	clients  *evm.ClientCache

	recorder metrics.Recorder
	// gatherer is set when metrics are enabled
	gatherer prometheus.Gatherer
}

type loader func(cmd *cobra.Command) (*app, error)

func wireApp(configPath string, logOutput io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger(logOutput)

	fileStore, err := store.NewFileStore(cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("wire store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    fileStore,
		registry: cfg.NewChainRegistry(logger),
		explorer: cfg.NewExplorerClient(logger),
		clients:  evm.NewClientCache(),
		recorder: metrics.NoopRecorder{},
	}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(registry)
		a.gatherer = registry
	}
	return a, nil
}
