package evm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubReceiptSource reports the receipt as mined after minedAfter lookups
type stubReceiptSource struct {
	calls      atomic.Int32
	minedAfter int32
	failFirst  bool
}

func (s *stubReceiptSource) GetTransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	n := s.calls.Add(1)
	if s.failFirst && n == 1 {
		return nil, errors.New("connection refused")
	}
	if n < s.minedAfter {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{TxHash: common.HexToHash(txHash), Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func TestSubmittedTx_Receipt(t *testing.T) {
	source := &stubReceiptSource{minedAfter: 3}
	tx := NewSubmittedTx("0xabc", source, 5*time.Millisecond)

	hash, err := tx.TransactionHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)

	receipt, err := tx.Receipt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc"), receipt.TxHash)
	assert.Equal(t, int32(3), source.calls.Load())
}

func TestSubmittedTx_ReceiptReportsLookupErrors(t *testing.T) {
	source := &stubReceiptSource{minedAfter: 2, failFirst: true}

	var reported atomic.Int32
	tx := NewSubmittedTx("0xabc", source, 5*time.Millisecond).OnLookupError(func(err error) {
		reported.Add(1)
	})

	_, err := tx.Receipt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), reported.Load())
}

func TestSubmittedTx_ReceiptCanceled(t *testing.T) {
	source := &stubReceiptSource{minedAfter: 1 << 30}
	tx := NewSubmittedTx("0xabc", source, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	receipt, err := tx.Receipt(ctx)
	assert.Nil(t, receipt)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
