package chains

import (
	"context"
	"fmt"

	"github.com/sigweihq/wcbroker/pkg/types"
)

// Directory is the chain directory service the registry loads from
type Directory interface {
	// ListChains returns every chain the directory knows about
	ListChains(ctx context.Context) ([]types.Chain, error)
}

// DirectoryFunc adapts a function to the Directory interface
type DirectoryFunc func(ctx context.Context) ([]types.Chain, error)

func (f DirectoryFunc) ListChains(ctx context.Context) ([]types.Chain, error) {
	return f(ctx)
}

// UnknownChainError is returned when a chain id is not in the loaded chain list
type UnknownChainError struct {
	ChainID int64
}

func (e *UnknownChainError) Error() string {
	return fmt.Sprintf("unknown chain: %d", e.ChainID)
}
