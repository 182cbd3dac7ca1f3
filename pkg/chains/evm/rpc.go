package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/wcbroker/pkg/constants"
)

// RPCClient runs read calls against a chain's endpoints with failover.
// Endpoints are tried in order (primary first); clients come from a ClientCache.
type RPCClient struct {
	chainID   int64
	endpoints []string
	cache     *ClientCache
	logger    *slog.Logger
}

// NewRPCClient creates a new EVM RPC client
func NewRPCClient(chainID int64, endpoints []string, cache *ClientCache, logger *slog.Logger) *RPCClient {
	if cache == nil {
		cache = DefaultClientCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClient{
		chainID:   chainID,
		endpoints: endpoints,
		cache:     cache,
		logger:    logger,
	}
}

// BalanceAt returns the latest balance of account in wei
func (r *RPCClient) BalanceAt(ctx context.Context, account string) (*big.Int, error) {
	var balance *big.Int
	err := r.withFailover(ctx, constants.BalanceTimeout, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		balance, err = client.BalanceAt(ctx, common.HexToAddress(account), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// GetTransactionReceipt returns the receipt of txHash, or ethereum.NotFound when
// no endpoint has seen it mined yet
func (r *RPCClient) GetTransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	var receipt *ethtypes.Receipt
	notFound := 0
	err := r.withFailover(ctx, constants.TransactionReceiptTimeout, func(ctx context.Context, client *ethclient.Client) error {
		var err error
		receipt, err = patchedTransactionReceipt(ctx, client, common.HexToHash(txHash))
		if err == ethereum.NotFound {
			notFound++
		}
		return err
	})
	if err != nil {
		if notFound > 0 {
			return nil, ethereum.NotFound
		}
		return nil, err
	}
	return receipt, nil
}

// withFailover runs call against each endpoint in turn until one succeeds
func (r *RPCClient) withFailover(ctx context.Context, timeout time.Duration, call func(ctx context.Context, client *ethclient.Client) error) error {
	if len(r.endpoints) == 0 {
		return fmt.Errorf("%w for chain %d", ErrNoEndpoints, r.chainID)
	}

	var lastErr error
	for i, endpoint := range r.endpoints {
		if i > 0 {
			// Progressive delay between endpoints
			delay := time.Duration(i*constants.DelayBetweenRPCCalls) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		client, err := r.cache.Client(endpoint)
		if err != nil {
			r.logger.Warn("failed to connect to RPC", "endpoint", endpoint, "error", err)
			lastErr = err
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = call(callCtx, client)
		cancel()
		if err == nil {
			return nil
		}
		if err != ethereum.NotFound {
			r.logger.Warn("RPC call failed", "endpoint", endpoint, "error", err)
		}
		lastErr = &RPCError{Endpoint: endpoint, Err: err}
	}

	return fmt.Errorf("all RPC endpoints failed for chain %d: %w", r.chainID, lastErr)
}

// patchedTransactionReceipt gets a transaction receipt, tolerating chains that add blockTimestamp to logs
func patchedTransactionReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	var raw json.RawMessage
	err := client.Client().CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}

	cleaned, err := stripBlockTimestampFromLogs(raw)
	if err != nil {
		return nil, err
	}

	var receipt ethtypes.Receipt
	if err := json.Unmarshal(cleaned, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}

// stripBlockTimestampFromLogs removes the blockTimestamp field from transaction logs
func stripBlockTimestampFromLogs(raw json.RawMessage) ([]byte, error) {
	var receiptMap map[string]interface{}
	if err := json.Unmarshal(raw, &receiptMap); err != nil {
		return nil, err
	}

	logs, ok := receiptMap["logs"].([]interface{})
	if ok {
		for _, log := range logs {
			logMap, ok := log.(map[string]interface{})
			if ok {
				delete(logMap, "blockTimestamp")
			}
		}
	}

	return json.Marshal(receiptMap)
}
