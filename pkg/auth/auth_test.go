package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sigweihq/wcbroker/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x1234567890123456789012345678901234567890"

type stubSigner struct {
	signed []string
	err    error
}

func (s *stubSigner) Account() string { return testWallet }

func (s *stubSigner) PersonalSign(ctx context.Context, message string) (string, error) {
	s.signed = append(s.signed, message)
	if s.err != nil {
		return "", s.err
	}
	return "0xsigned", nil
}

func newTestClient(t *testing.T, url string, signer Signer) *Client {
	t.Helper()
	client, err := NewClient(url, http.DefaultClient, signer, nil)
	require.NoError(t, err)
	return client
}

func TestNewClient_RejectsInsecureURL(t *testing.T) {
	_, err := NewClient("http://wallet.example", nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auth url")
}

func TestClient_GetAuthMessage(t *testing.T) {
	tests := []struct {
		name             string
		walletAddress    string
		serverResponse   *MessageResponse
		serverStatusCode int
		expectedError    bool
		errorContains    string
	}{
		{
			name:          "successful message retrieval",
			walletAddress: testWallet,
			serverResponse: &MessageResponse{
				Message: "Sign this message to log in.\n\nNonce: abc123",
			},
			serverStatusCode: http.StatusOK,
		},
		{
			name:             "server error",
			walletAddress:    testWallet,
			serverStatusCode: http.StatusInternalServerError,
			expectedError:    true,
			errorContains:    "failed to get auth message",
		},
		{
			name:             "invalid wallet address",
			walletAddress:    "invalid",
			serverStatusCode: http.StatusBadRequest,
			expectedError:    true,
			errorContains:    "failed to get auth message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/auth/message", r.URL.Path)
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.walletAddress, r.URL.Query().Get("walletAddress"))

				w.WriteHeader(tt.serverStatusCode)
				if tt.serverResponse != nil {
					json.NewEncoder(w).Encode(tt.serverResponse)
				}
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, nil)
			result, err := client.GetAuthMessage(context.Background(), tt.walletAddress)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.serverResponse.Message, result.Message)
		})
	}
}

func TestClient_Login(t *testing.T) {
	tests := []struct {
		name             string
		signature        string
		serverResponse   *LoginResponse
		serverStatusCode int
		expectedError    bool
	}{
		{
			name:      "successful login",
			signature: "0xabc123",
			serverResponse: &LoginResponse{
				User:         &User{ID: 1, WalletAddress: testWallet},
				AccessToken:  "access-token-123",
				RefreshToken: "refresh-token-456",
			},
			serverStatusCode: http.StatusOK,
		},
		{
			name:             "invalid signature",
			signature:        "0xinvalid",
			serverStatusCode: http.StatusUnauthorized,
			expectedError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)

				var req LoginRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "challenge", req.Message)
				assert.Equal(t, tt.signature, req.Signature)

				w.WriteHeader(tt.serverStatusCode)
				if tt.serverResponse != nil {
					json.NewEncoder(w).Encode(tt.serverResponse)
				}
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, nil)
			result, err := client.Login(context.Background(), "challenge", tt.signature)

			if tt.expectedError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to login")
				assert.True(t, IsRetryable(err), "a 401 is retryable")
				assert.False(t, client.IsAuthenticated())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.serverResponse.User.ID, result.User.ID)
			assert.Equal(t, "access-token-123", client.GetAccessToken())
			assert.Equal(t, "refresh-token-456", client.GetRefreshToken())
			assert.True(t, client.IsAuthenticated())
		})
	}
}

func TestClient_RefreshToken(t *testing.T) {
	tests := []struct {
		name              string
		initialRefreshTok string
		serverResponse    *TokenPair
		serverStatusCode  int
		errorContains     string
	}{
		{
			name:              "successful token refresh",
			initialRefreshTok: "refresh-token-456",
			serverResponse:    &TokenPair{AccessToken: "new-access-token", RefreshToken: "new-refresh-token"},
			serverStatusCode:  http.StatusOK,
		},
		{
			name:              "no refresh token available",
			initialRefreshTok: "",
			serverStatusCode:  http.StatusOK,
			errorContains:     "no refresh token available",
		},
		{
			name:              "invalid refresh token",
			initialRefreshTok: "invalid-token",
			serverStatusCode:  http.StatusUnauthorized,
			errorContains:     "failed to refresh token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/auth/refresh", r.URL.Path)

				var req RefreshRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, tt.initialRefreshTok, req.RefreshToken)

				w.WriteHeader(tt.serverStatusCode)
				if tt.serverResponse != nil {
					json.NewEncoder(w).Encode(tt.serverResponse)
				}
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, nil)
			client.SetTokens("old-access-token", tt.initialRefreshTok)

			result, err := client.RefreshToken(context.Background())

			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "new-access-token", client.GetAccessToken())
			assert.Equal(t, "new-refresh-token", client.GetRefreshToken())
		})
	}
}

func TestClient_GetMeAndLogout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/auth/me":
			json.NewEncoder(w).Encode(User{ID: 1, WalletAddress: testWallet})
		case "/api/v1/auth/logout":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	_, err := client.GetMe(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, client.Logout(context.Background()), ErrNotAuthenticated)

	client.SetTokens("valid-token", "refresh-token")
	user, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testWallet, user.WalletAddress)

	require.NoError(t, client.Logout(context.Background()))
	assert.False(t, client.IsAuthenticated())
	assert.Empty(t, client.GetRefreshToken())
}

// authBackend is a fake login backend that accepts one access token at a time
type authBackend struct {
	validAccess  atomic.Value
	meCalls      atomic.Int32
	refreshCalls atomic.Int32
	loginCalls   atomic.Int32
	refreshFails bool
}

func newAuthBackend(t *testing.T, backend *authBackend) *httptest.Server {
	backend.validAccess.Store("")
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/message":
			json.NewEncoder(w).Encode(MessageResponse{Message: "challenge"})
		case "/api/v1/auth/login":
			backend.loginCalls.Add(1)
			backend.validAccess.Store("login-access")
			json.NewEncoder(w).Encode(LoginResponse{AccessToken: "login-access", RefreshToken: "login-refresh"})
		case "/api/v1/auth/refresh":
			backend.refreshCalls.Add(1)
			if backend.refreshFails {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			backend.validAccess.Store("refreshed-access")
			json.NewEncoder(w).Encode(TokenPair{AccessToken: "refreshed-access", RefreshToken: "refreshed-refresh"})
		case "/api/v1/auth/me":
			backend.meCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer "+backend.validAccess.Load().(string) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "token expired"})
				return
			}
			json.NewEncoder(w).Encode(User{ID: 1, WalletAddress: testWallet})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestEnsureSession_LogsInWhenUnauthenticated(t *testing.T) {
	backend := &authBackend{}
	server := newAuthBackend(t, backend)
	defer server.Close()

	signer := &stubSigner{}
	client := newTestClient(t, server.URL, signer)

	require.NoError(t, client.EnsureSession(context.Background(), false))
	assert.Equal(t, []string{"challenge"}, signer.signed)
	assert.Equal(t, "login-access", client.GetAccessToken())
	assert.Equal(t, int32(1), backend.loginCalls.Load())
}

func TestEnsureSession_ValidTokenIsKept(t *testing.T) {
	backend := &authBackend{}
	server := newAuthBackend(t, backend)
	defer server.Close()
	backend.validAccess.Store("current")

	client := newTestClient(t, server.URL, &stubSigner{})
	client.SetTokens("current", "refresh")

	require.NoError(t, client.EnsureSession(context.Background(), false))
	assert.Equal(t, int32(1), backend.meCalls.Load())
	assert.Equal(t, int32(0), backend.loginCalls.Load())
}

func TestEnsureSession_ExpiredTokenRetriedOnceWithRefresh(t *testing.T) {
	backend := &authBackend{}
	server := newAuthBackend(t, backend)
	defer server.Close()
	backend.validAccess.Store("somebody-else")

	client := newTestClient(t, server.URL, &stubSigner{})
	client.SetTokens("stale", "refresh")

	var attempts []bool
	err := utils.RetryWithRefresh(context.Background(), func(ctx context.Context, refresh bool) error {
		attempts = append(attempts, refresh)
		return client.EnsureSession(ctx, refresh)
	}, IsRetryable)

	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, attempts)
	assert.Equal(t, "refreshed-access", client.GetAccessToken())
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Equal(t, int32(0), backend.loginCalls.Load())
}

func TestEnsureSession_RefreshFailureFallsBackToLogin(t *testing.T) {
	backend := &authBackend{refreshFails: true}
	server := newAuthBackend(t, backend)
	defer server.Close()

	signer := &stubSigner{}
	client := newTestClient(t, server.URL, signer)
	client.SetTokens("stale", "refresh")

	require.NoError(t, client.EnsureSession(context.Background(), true))
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Equal(t, int32(1), backend.loginCalls.Load())
	assert.Equal(t, "login-access", client.GetAccessToken())
}

func TestEnsureSession_ExpiredToken(t *testing.T) {
	backend := &authBackend{}
	server := newAuthBackend(t, backend)
	defer server.Close()
	backend.validAccess.Store("somebody-else")

	client := newTestClient(t, server.URL, &stubSigner{})
	client.SetTokens("stale", "refresh")

	err := client.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.True(t, IsRetryable(err))
}

func TestEnsureSession_SignerFailure(t *testing.T) {
	backend := &authBackend{}
	server := newAuthBackend(t, backend)
	defer server.Close()

	client := newTestClient(t, server.URL, &stubSigner{err: errors.New("wallet locked")})

	err := client.EnsureSession(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet locked")
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(0), backend.loginCalls.Load())
}

func TestEnsureSession_NoSigner(t *testing.T) {
	client := newTestClient(t, "https://wallet.example", nil)
	assert.Error(t, client.EnsureSession(context.Background(), false))
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  *HTTPError
		want string
	}{
		{
			name: "json error with details",
			err:  &HTTPError{StatusCode: 401, Status: "401 Unauthorized", Body: []byte(`{"error":"token expired","details":"exp in past"}`)},
			want: "HTTP 401: token expired - exp in past",
		},
		{
			name: "json error",
			err:  &HTTPError{StatusCode: 400, Status: "400 Bad Request", Body: []byte(`{"error":"bad address"}`)},
			want: "HTTP 400: bad address",
		},
		{
			name: "plain body",
			err:  &HTTPError{StatusCode: 500, Status: "500 Internal Server Error", Body: []byte("boom")},
			want: "HTTP 500: 500 Internal Server Error - boom",
		},
		{
			name: "no body",
			err:  &HTTPError{StatusCode: 502, Status: "502 Bad Gateway"},
			want: "HTTP 502: 502 Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
	assert.True(t, (&HTTPError{StatusCode: http.StatusUnauthorized}).IsUnauthorized())
	assert.False(t, (&HTTPError{StatusCode: http.StatusForbidden}).IsUnauthorized())
}
