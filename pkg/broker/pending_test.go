package broker

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/wcbroker/pkg/chains/evm"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReceipt(t *testing.T) {
	tests := []struct {
		name        string
		mined       bool
		wantPending int
	}{
		{name: "mined removes the entry", mined: true, wantPending: 0},
		{name: "canceled wait keeps the entry", mined: false, wantPending: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			require.NoError(t, store.PutPendingTransaction(context.Background(), s, types.PendingTransaction{
				TxHash:  testTxHash,
				ChainID: 1,
				Payload: types.CallRequest{ID: 1, Method: "eth_sendTransaction"},
			}))

			submission := newFakeSubmission(testTxHash)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.mined {
				submission.receipts <- &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}
			} else {
				cancel()
			}

			receipt, err := AwaitReceipt(ctx, s, testTxHash, submission)
			if tt.mined {
				require.NoError(t, err)
				require.NotNil(t, receipt)
				assert.Equal(t, int64(7), receipt.BlockNumber.Int64())
			} else {
				assert.ErrorIs(t, err, context.Canceled)
				assert.Nil(t, receipt)
			}

			pending, _, err := store.ListPendingTransactions(context.Background(), s)
			require.NoError(t, err)
			assert.Len(t, pending, tt.wantPending)
		})
	}
}

func TestReceiptWatch(t *testing.T) {
	h := newHarness(t)
	h.mined.Store(true)

	chain := types.Chain{ChainID: 1, RPCURLs: []string{h.rpc.URL}}
	watch := ReceiptWatch(testTxHash, chain, evm.NewClientCache(), 10*time.Millisecond, slog.Default())
	hash, err := watch.TransactionHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testTxHash, hash)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	receipt, err := watch.Receipt(ctx)
	require.NoError(t, err)
	assert.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
}
