package explorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

func TestClient_FetchABI(t *testing.T) {
	tests := []struct {
		name          string
		response      abiResponse
		status        int
		want          string
		expectedError bool
		errorContains string
	}{
		{
			name:     "verified contract",
			response: abiResponse{Status: "1", Message: "OK", Result: erc20TransferABI},
			status:   http.StatusOK,
			want:     erc20TransferABI,
		},
		{
			name:     "unverified contract",
			response: abiResponse{Status: "0", Message: "NOTOK", Result: "Contract source code not verified"},
			status:   http.StatusOK,
			want:     "",
		},
		{
			name:          "malformed abi",
			response:      abiResponse{Status: "1", Message: "OK", Result: "not json"},
			status:        http.StatusOK,
			expectedError: true,
			errorContains: "malformed abi",
		},
		{
			name:          "server error",
			status:        http.StatusInternalServerError,
			expectedError: true,
			errorContains: "failed to fetch contract abi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api", r.URL.Path)
				assert.Equal(t, "contract", r.URL.Query().Get("module"))
				assert.Equal(t, "getabi", r.URL.Query().Get("action"))
				assert.Equal(t, "0xe3f85aad0c8dd7337427b9df5d0fb741d65eeeb5", r.URL.Query().Get("address"))
				assert.Equal(t, "key-123", r.URL.Query().Get("apikey"))

				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					json.NewEncoder(w).Encode(tt.response)
				}
			}))
			defer server.Close()

			client := NewClient(nil, WithHTTPClient(http.DefaultClient), WithAPIKey("key-123"))
			abiJSON, err := client.FetchABI(context.Background(), server.URL+"/", "0xe3f85aad0c8dd7337427b9df5d0fb741d65eeeb5")

			if tt.expectedError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, abiJSON)
		})
	}
}

func TestClient_FetchABIWithoutExplorer(t *testing.T) {
	client := NewClient(nil)
	abiJSON, err := client.FetchABI(context.Background(), "", "0xe3f85aad0c8dd7337427b9df5d0fb741d65eeeb5")
	require.NoError(t, err)
	assert.Empty(t, abiJSON)
}

func TestClient_FetchABIRejectsInsecureExplorer(t *testing.T) {
	client := NewClient(nil)
	_, err := client.FetchABI(context.Background(), "http://explorer.example", "0xe3f85aad0c8dd7337427b9df5d0fb741d65eeeb5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must use HTTPS")
}

func TestClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(abiResponse{Status: "1", Result: erc20TransferABI})
	}))
	defer server.Close()

	// one request per hour after the first: the second call must give up on the context
	client := NewClient(nil, WithHTTPClient(http.DefaultClient), WithRateLimit(1.0/3600, 1))

	_, err := client.FetchABI(context.Background(), server.URL, "0x1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.FetchABI(ctx, server.URL, "0x1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), calls.Load())
}
