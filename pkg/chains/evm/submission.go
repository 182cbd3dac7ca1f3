package evm

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/wcbroker/pkg/constants"
)

// ReceiptSource looks up transaction receipts
type ReceiptSource interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error)
}

// SubmittedTx is a broadcast transaction whose hash is known and whose receipt is polled for
type SubmittedTx struct {
	hash     string
	source   ReceiptSource
	interval time.Duration
	onError  func(error)
}

// NewSubmittedTx watches hash through source, polling every interval (constants.ReceiptPollInterval when zero)
func NewSubmittedTx(hash string, source ReceiptSource, interval time.Duration) *SubmittedTx {
	if interval <= 0 {
		interval = constants.ReceiptPollInterval
	}
	return &SubmittedTx{hash: hash, source: source, interval: interval}
}

// OnLookupError registers a callback for lookup failures other than "not found"
func (s *SubmittedTx) OnLookupError(fn func(error)) *SubmittedTx {
	s.onError = fn
	return s
}

// TransactionHash returns the hash the transaction was broadcast under
func (s *SubmittedTx) TransactionHash(ctx context.Context) (string, error) {
	return s.hash, nil
}

// Receipt blocks until the transaction is mined or ctx ends.
// Lookup errors other than "not found" are retried on the next tick.
func (s *SubmittedTx) Receipt(ctx context.Context) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		receipt, err := s.source.GetTransactionReceipt(ctx, s.hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && s.onError != nil {
			s.onError(err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
