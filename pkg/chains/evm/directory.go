package evm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/sigweihq/wcbroker/pkg/utils"
)

// ChainListEntry represents a chain entry from chainid.network/chains.json
type ChainListEntry struct {
	Name      string   `json:"name"`
	ChainID   int64    `json:"chainId"`
	RPC       []string `json:"rpc"`
	Explorers []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"explorers,omitempty"`
}

// ChainListDirectory fetches the chain list from a chainid.network compatible endpoint
// and puts official endpoints first
type ChainListDirectory struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	// healthCheck lists the chains whose endpoints are probed and reordered healthy-first
	healthCheck map[int64]bool
}

var _ chains.Directory = (*ChainListDirectory)(nil)

// NewChainListDirectory creates a directory reading from url (constants.DefaultDirectoryURL when empty)
func NewChainListDirectory(url string, httpClient *http.Client, logger *slog.Logger, healthCheckChains ...int64) *ChainListDirectory {
	if url == "" {
		url = constants.DefaultDirectoryURL
	}
	if httpClient == nil {
		httpClient = utils.CreateHTTPClientWithTimeouts()
	}
	if logger == nil {
		logger = slog.Default()
	}

	healthCheck := make(map[int64]bool, len(healthCheckChains))
	for _, id := range healthCheckChains {
		healthCheck[id] = true
	}

	return &ChainListDirectory{
		url:         url,
		httpClient:  httpClient,
		logger:      logger,
		healthCheck: healthCheck,
	}
}

// ListChains implements chains.Directory
func (d *ChainListDirectory) ListChains(ctx context.Context) ([]types.Chain, error) {
	entries, err := utils.MakeJSONRequest[[]ChainListEntry](ctx, d.httpClient, http.MethodGet, d.url, nil, nil, "chains")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain list: %w", err)
	}

	result := make([]types.Chain, 0, len(*entries))
	for _, entry := range *entries {
		chain := types.Chain{
			ChainID: entry.ChainID,
			Name:    entry.Name,
			RPCURLs: mergeEndpoints(constants.OfficialRPCEndpoints[entry.ChainID], extractHTTPSRPCs(entry.RPC)),
		}
		for _, explorer := range entry.Explorers {
			if explorer.URL != "" {
				chain.ExplorerURLs = append(chain.ExplorerURLs, explorer.URL)
			}
		}

		if d.healthCheck[entry.ChainID] {
			chain.RPCURLs = d.prioritizeHealthy(ctx, entry.ChainID, chain.RPCURLs)
		}

		result = append(result, chain)
	}

	d.logger.Info("loaded chain list", "url", d.url, "chains", len(result))
	return result, nil
}

// extractHTTPSRPCs filters and extracts HTTPS RPC URLs
func extractHTTPSRPCs(urls []string) []string {
	var httpsRPCs []string
	for _, url := range urls {
		// Only include HTTPS URLs and exclude templated URLs
		if strings.HasPrefix(url, "https://") && !strings.Contains(url, "${") {
			httpsRPCs = append(httpsRPCs, url)
		}
	}
	return httpsRPCs
}

// mergeEndpoints appends extra to official, skipping duplicates
func mergeEndpoints(official, extra []string) []string {
	seen := make(map[string]bool, len(official)+len(extra))
	merged := make([]string, 0, len(official)+len(extra))
	for _, list := range [][]string{official, extra} {
		for _, url := range list {
			if seen[url] {
				continue
			}
			seen[url] = true
			merged = append(merged, url)
		}
	}
	return merged
}

// prioritizeHealthy checks endpoint health and puts working ones first
func (d *ChainListDirectory) prioritizeHealthy(ctx context.Context, chainID int64, endpoints []string) []string {
	var healthyEndpoints, unhealthyEndpoints []string
	for _, endpoint := range endpoints {
		if isEndpointHealthy(ctx, endpoint) {
			healthyEndpoints = append(healthyEndpoints, endpoint)
		} else {
			unhealthyEndpoints = append(unhealthyEndpoints, endpoint)
		}
	}

	d.logger.Debug("health check complete",
		"chainID", chainID,
		"healthy", len(healthyEndpoints),
		"unhealthy", len(unhealthyEndpoints))

	// Healthy endpoints first, unhealthy kept as backup
	return append(healthyEndpoints, unhealthyEndpoints...)
}

// isEndpointHealthy performs a simple health check on an RPC endpoint
func isEndpointHealthy(ctx context.Context, endpoint string) bool {
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return false
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err = client.BlockNumber(ctx)
	return err == nil
}
