package chains

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/types"
)

// Registry caches the supported chain list.
// The first successful load is frozen for the lifetime of the registry; a failed
// load leaves the registry empty so the next caller tries again.
type Registry struct {
	directory Directory
	chains    []types.Chain
	byID      map[int64]types.Chain
	loaded    bool
	mu        sync.Mutex
}

// NewRegistry creates a registry backed by the given directory
func NewRegistry(directory Directory) *Registry {
	return &Registry{directory: directory}
}

// Chains returns the chain list sorted by name, loading it on first use
func (r *Registry) Chains(ctx context.Context) ([]types.Chain, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}

	out := make([]types.Chain, len(r.chains))
	copy(out, r.chains)
	return out, nil
}

// Chain looks up a chain by numeric id
func (r *Registry) Chain(ctx context.Context, chainID int64) (types.Chain, error) {
	if err := r.load(ctx); err != nil {
		return types.Chain{}, err
	}

	chain, ok := r.byID[chainID]
	if !ok {
		return types.Chain{}, &UnknownChainError{ChainID: chainID}
	}
	return chain, nil
}

func (r *Registry) load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}
	if r.directory == nil {
		return fmt.Errorf("chain registry has no directory")
	}

	chains, err := r.directory.ListChains(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chain list: %w", err)
	}

	sort.SliceStable(chains, func(i, j int) bool {
		return strings.ToLower(chains[i].Name) < strings.ToLower(chains[j].Name)
	})

	byID := make(map[int64]types.Chain, len(chains))
	for _, chain := range chains {
		if _, dup := byID[chain.ChainID]; !dup {
			byID[chain.ChainID] = chain
		}
	}

	r.chains = chains
	r.byID = byID
	r.loaded = true
	return nil
}

// RPCURL returns the primary RPC endpoint of a chain
func RPCURL(chain types.Chain) string {
	if len(chain.RPCURLs) == 0 {
		return ""
	}
	return chain.RPCURLs[0]
}

// ExplorerURL returns the explorer used for ABI lookups and address links.
// Chains listed in constants.ExplorerOverrides use the override instead of their first explorer.
func ExplorerURL(chain types.Chain) string {
	if override, ok := constants.ExplorerOverrides[chain.ChainID]; ok {
		return override
	}
	if len(chain.ExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimRight(chain.ExplorerURLs[0], "/")
}
