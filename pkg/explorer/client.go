package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sigweihq/wcbroker/pkg/utils"
	"golang.org/x/time/rate"
)

// Default request budget; public explorer APIs allow ~5 requests/second without a key
const (
	DefaultRateLimit = 5
	DefaultBurst     = 5
)

// abiResponse is the Etherscan / Blockscout `getabi` envelope
type abiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Client fetches verified contract ABIs from Etherscan-compatible explorers
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey sends apikey with every request
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRateLimit replaces the default request budget
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates an explorer ABI client
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: utils.CreateHTTPClientWithTimeouts(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultBurst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchABI returns the ABI JSON of a verified contract, or "" when the explorer has none.
// GET {explorer}/api?module=contract&action=getabi&address=0x...
func (c *Client) FetchABI(ctx context.Context, explorerURL, contractAddress string) (string, error) {
	if explorerURL == "" || contractAddress == "" {
		return "", nil
	}
	if err := utils.ValidateServiceURL(explorerURL); err != nil {
		return "", err
	}

	u, err := url.Parse(strings.TrimRight(explorerURL, "/") + "/api")
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("module", "contract")
	q.Set("action", "getabi")
	q.Set("address", contractAddress)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("explorer rate limit wait: %w", err)
	}

	c.logger.Debug("fetching contract abi", "explorer", explorerURL, "contract", contractAddress)
	resp, err := utils.MakeJSONRequest[abiResponse](ctx, c.httpClient, http.MethodGet, u.String(), nil, nil, "getabi")
	if err != nil {
		return "", fmt.Errorf("failed to fetch contract abi: %w", err)
	}

	// status "0" covers unverified contracts and unknown addresses
	if resp.Status != "1" || resp.Result == "" {
		c.logger.Debug("no abi for contract", "contract", contractAddress, "message", resp.Message)
		return "", nil
	}
	if !json.Valid([]byte(resp.Result)) {
		return "", fmt.Errorf("explorer returned malformed abi for %s", contractAddress)
	}

	return resp.Result, nil
}
