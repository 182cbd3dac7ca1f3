package evm

import (
	"errors"
	"fmt"
)

// ErrNoEndpoints is returned when a chain has no RPC endpoint configured
var ErrNoEndpoints = errors.New("no RPC endpoints available")

// RPCError represents an RPC-related error
type RPCError struct {
	Endpoint string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error on %s: %v", e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}
