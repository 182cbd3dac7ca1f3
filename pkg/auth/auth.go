// Package auth logs the wallet into its backend with a personal-sign challenge
// and keeps the resulting token pair fresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sigweihq/wcbroker/pkg/utils"
)

var (
	// ErrNotAuthenticated is returned by calls that need an access token when none is held
	ErrNotAuthenticated = errors.New("not authenticated: no access token")

	// ErrTokenExpired is returned when the backend rejects the held access token
	ErrTokenExpired = errors.New("access token expired")
)

// MessageResponse carries the challenge to sign
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest is a signed challenge
type LoginRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// User is the backend's view of the wallet
type User struct {
	ID            uint64 `json:"id"`
	WalletAddress string `json:"walletAddress"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// LoginResponse is returned by a successful login
type LoginResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenPair represents access and refresh token pair
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Signer signs the login challenge with the wallet's key
type Signer interface {
	Account() string
	PersonalSign(ctx context.Context, message string) (string, error)
}

// Client handles wallet-signature authentication
type Client struct {
	baseURL      string
	httpClient   *http.Client
	signer       Signer
	logger       *slog.Logger
	accessToken  string
	refreshToken string
	tokenMutex   sync.RWMutex
}

// NewClient creates an auth client for the backend at baseURL.
// httpClient defaults to utils.CreateHTTPClientWithTimeouts().
func NewClient(baseURL string, httpClient *http.Client, signer Signer, logger *slog.Logger) (*Client, error) {
	if err := utils.ValidateServiceURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid auth url: %w", err)
	}
	if httpClient == nil {
		httpClient = utils.CreateHTTPClientWithTimeouts()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		signer:     signer,
		logger:     logger,
	}, nil
}

// GetAuthMessage retrieves the challenge for walletAddress
// GET /api/v1/auth/message?walletAddress=0x...
func (c *Client) GetAuthMessage(ctx context.Context, walletAddress string) (*MessageResponse, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/auth/message")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	q := u.Query()
	q.Set("walletAddress", walletAddress)
	u.RawQuery = q.Encode()

	var result MessageResponse
	if err := httpRequest(ctx, c.httpClient, http.MethodGet, u.String(), nil, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get auth message: %w", err)
	}

	return &result, nil
}

// Login exchanges a signed challenge for a token pair
// POST /api/v1/auth/login
func (c *Client) Login(ctx context.Context, message, signature string) (*LoginResponse, error) {
	reqBody := LoginRequest{
		Message:   message,
		Signature: signature,
	}

	var result LoginResponse
	if err := httpRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/auth/login", reqBody, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	c.SetTokens(result.AccessToken, result.RefreshToken)

	return &result, nil
}

// RefreshToken exchanges the refresh token for a new pair
// POST /api/v1/auth/refresh
func (c *Client) RefreshToken(ctx context.Context) (*TokenPair, error) {
	currentRefreshToken := c.GetRefreshToken()
	if currentRefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	reqBody := RefreshRequest{
		RefreshToken: currentRefreshToken,
	}

	var result TokenPair
	if err := httpRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", reqBody, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	c.SetTokens(result.AccessToken, result.RefreshToken)

	return &result, nil
}

// GetMe returns the authenticated user; it doubles as the token validity check
// GET /api/v1/auth/me
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	token := c.GetAccessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}

	var result User
	if err := httpRequest(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/v1/auth/me", nil, headers, &result); err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	return &result, nil
}

// Logout ends the backend session and forgets the tokens
// POST /api/v1/auth/logout
func (c *Client) Logout(ctx context.Context) error {
	token := c.GetAccessToken()
	if token == "" {
		return ErrNotAuthenticated
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}

	if err := httpRequest(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/v1/auth/logout", nil, headers, nil); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	c.ClearTokens()

	return nil
}

// SetTokens stores the access and refresh tokens (thread-safe)
func (c *Client) SetTokens(accessToken, refreshToken string) {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
}

// GetAccessToken retrieves the current access token (thread-safe)
func (c *Client) GetAccessToken() string {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.accessToken
}

// GetRefreshToken retrieves the current refresh token (thread-safe)
func (c *Client) GetRefreshToken() string {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.refreshToken
}

// ClearTokens clears all stored tokens (thread-safe)
func (c *Client) ClearTokens() {
	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
}

// IsAuthenticated returns true if an access token is available
func (c *Client) IsAuthenticated() bool {
	return c.GetAccessToken() != ""
}
