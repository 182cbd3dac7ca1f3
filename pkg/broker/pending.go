package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/wcbroker/pkg/chains/evm"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/sigweihq/wcbroker/pkg/types"
)

// ReceiptWatch polls chain's endpoints for the receipt of txHash every interval
func ReceiptWatch(txHash string, chain types.Chain, clients *evm.ClientCache, interval time.Duration, logger *slog.Logger) *evm.SubmittedTx {
	logger = logger.With("hash", txHash, "chainId", chain.ChainID)
	rpc := evm.NewRPCClient(chain.ChainID, chain.RPCURLs, clients, logger)
	return evm.NewSubmittedTx(txHash, rpc, interval).OnLookupError(func(err error) {
		logger.Debug("receipt lookup failed", "error", err)
	})
}

// AwaitReceipt blocks until submission is mined and then removes the pending entry of txHash.
// A removal failure is returned together with the receipt.
func AwaitReceipt(ctx context.Context, s store.Store, txHash string, submission TxSubmission) (*ethtypes.Receipt, error) {
	receipt, err := submission.Receipt(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.RemovePendingTransaction(context.WithoutCancel(ctx), s, txHash); err != nil {
		return receipt, fmt.Errorf("remove pending %s: %w", txHash, err)
	}
	return receipt, nil
}

// watchReceipt waits for the transaction's receipt in the background and then drops
// its pending entry. Only one watch runs per hash.
func (b *Broker) watchReceipt(pending types.PendingTransaction, submission TxSubmission) bool {
	b.watchMu.Lock()
	if _, ok := b.watching[pending.TxHash]; ok {
		b.watchMu.Unlock()
		return false
	}
	b.watching[pending.TxHash] = struct{}{}
	b.watchers.Add(1)
	b.watchMu.Unlock()

	go func() {
		defer b.watchers.Done()
		defer func() {
			b.watchMu.Lock()
			delete(b.watching, pending.TxHash)
			b.watchMu.Unlock()
		}()

		receipt, err := AwaitReceipt(b.lifetime, b.store, pending.TxHash, submission)
		if receipt == nil {
			if b.lifetime.Err() == nil {
				b.logger.Warn("failed to wait for transaction receipt", "hash", pending.TxHash, "error", err)
			}
			return
		}

		b.logger.Info("transaction mined",
			"hash", pending.TxHash,
			"status", receipt.Status,
			"block", receipt.BlockNumber,
		)
		if err != nil {
			b.logger.Error("failed to remove pending transaction", "hash", pending.TxHash, "error", err)
		}
	}()
	return true
}

// PendingTransactions lists the sent transactions whose receipt has not been seen yet
func (b *Broker) PendingTransactions(ctx context.Context) ([]types.PendingTransaction, error) {
	pending, corrupt, err := store.ListPendingTransactions(ctx, b.store)
	if err != nil {
		return nil, err
	}
	for _, key := range corrupt {
		b.logger.Warn("skipping corrupt pending transaction entry", "key", key)
	}
	return pending, nil
}

// ResumePending starts receipt watches for pending transactions left by an earlier run
// and returns how many were started. Entries without a chain id use the active
// session's chain, then constants.DefaultChainID.
func (b *Broker) ResumePending(ctx context.Context) (int, error) {
	pending, err := b.PendingTransactions(ctx)
	if err != nil {
		return 0, err
	}

	fallback := int64(constants.DefaultChainID)
	if session, ok := b.Session(); ok && session.ChainID != 0 {
		fallback = session.ChainID
	}

	started := 0
	for _, p := range pending {
		chainID := p.ChainID
		if chainID == 0 {
			chainID = fallback
		}
		chain := b.lookupChain(ctx, chainID, "")
		if chain == nil || len(chain.RPCURLs) == 0 {
			b.logger.Warn("cannot watch pending transaction on unknown chain", "hash", p.TxHash, "chainId", chainID)
			continue
		}

		if b.watchReceipt(p, ReceiptWatch(p.TxHash, *chain, b.clients, b.pollInterval, b.logger)) {
			started++
		}
	}
	return started, nil
}
