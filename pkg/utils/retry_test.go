package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errExpired = errors.New("token expired")

func TestRetryWithRefresh(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		shouldRetry  func(error) bool
		wantErr      bool
		wantCalls    int
		wantRefreshes []bool
	}{
		{
			name:         "first attempt succeeds",
			failures:     0,
			wantCalls:    1,
			wantRefreshes: []bool{false},
		},
		{
			name:         "retried once with refresh",
			failures:     1,
			wantCalls:    2,
			wantRefreshes: []bool{false, true},
		},
		{
			name:         "never retried more than once",
			failures:     5,
			wantErr:      true,
			wantCalls:    2,
			wantRefreshes: []bool{false, true},
		},
		{
			name:         "non retryable error surfaces immediately",
			failures:     1,
			shouldRetry:  func(err error) bool { return false },
			wantErr:      true,
			wantCalls:    1,
			wantRefreshes: []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refreshes []bool
			err := RetryWithRefresh(context.Background(), func(ctx context.Context, refresh bool) error {
				refreshes = append(refreshes, refresh)
				if len(refreshes) <= tt.failures {
					return errExpired
				}
				return nil
			}, tt.shouldRetry)

			if tt.wantErr {
				assert.ErrorIs(t, err, errExpired)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, refreshes, tt.wantCalls)
			assert.Equal(t, tt.wantRefreshes, refreshes)
		})
	}
}

func TestRetryWithRefresh_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RetryWithRefresh(ctx, func(ctx context.Context, refresh bool) error {
		called = true
		return nil
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
