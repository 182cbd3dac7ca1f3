package evm

import (
	"log/slog"
	"net/http"

	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/constants"
)

// NewChainRegistry creates a registry backed by a chainid.network compatible directory.
// Official chains are health checked so their working endpoints come first.
// The chain list itself is fetched lazily on first use and then frozen.
func NewChainRegistry(logger *slog.Logger, directoryURL string, httpClient *http.Client) *chains.Registry {
	return chains.NewRegistry(newDirectory(logger, directoryURL, httpClient))
}

func newDirectory(logger *slog.Logger, directoryURL string, httpClient *http.Client) *ChainListDirectory {
	return NewChainListDirectory(directoryURL, httpClient, logger, officialChainIDs()...)
}

func officialChainIDs() []int64 {
	ids := make([]int64, 0, len(constants.OfficialRPCEndpoints))
	for id := range constants.OfficialRPCEndpoints {
		ids = append(ids, id)
	}
	return ids
}
