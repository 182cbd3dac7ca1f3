package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
	"github.com/sigweihq/wcbroker/pkg/constants"
)

// ValidateServiceURL validates that an explorer, directory or auth URL is secure
// Returns error if URL doesn't use HTTPS (except for localhost/127.0.0.1 for testing)
func ValidateServiceURL(url string) error {
	if !strings.HasPrefix(url, "https://") {
		// Allow http://localhost and http://127.0.0.1 for testing
		if strings.HasPrefix(url, "http://localhost") ||
			strings.HasPrefix(url, "http://127.0.0.1") ||
			strings.HasPrefix(url, "http://[::1]") {
			return nil
		}
		return fmt.Errorf("service URL must use HTTPS: %s", url)
	}
	return nil
}

func CreateHTTPClientWithTimeouts() *http.Client {
	return &http.Client{
		Timeout: constants.HTTPTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
			ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
			ExpectContinueTimeout: constants.ExpectContinueTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Disable redirects to prevent redirect-based SSRF
		},
	}
}

// MakeJSONRequest is a generic helper for making HTTP requests with JSON payloads
// It handles marshaling, headers, and response decoding
func MakeJSONRequest[T any](
	ctx context.Context,
	client *http.Client,
	method string,
	url string,
	requestBody any,
	headers map[string]string,
	endpointName string, // e.g., "getabi", "chains" - used in error messages
) (*T, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", endpointName, err)
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, int64(constants.MaxResponseBodySize))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(limitedReader)
		return nil, fmt.Errorf("%s request failed with status %d: %s", endpointName, resp.StatusCode, string(body))
	}

	var result T
	if err := json.NewDecoder(limitedReader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpointName, err)
	}

	return &result, nil
}

// IsHexString reports whether s is a 0x-prefixed, even length hex string
func IsHexString(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	_, err := hexutil.Decode(strings.ToLower(s[:2]) + s[2:])
	return err == nil
}

// HexToUTF8 decodes a 0x-prefixed hex string into text.
// Returns ok=false when s is not hex or does not decode to valid UTF-8.
func HexToUTF8(s string) (string, bool) {
	if !IsHexString(s) {
		return "", false
	}
	raw := common.FromHex(s)
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// IsAddress is the deterministic "valid account address" check used for explorer links
func IsAddress(s string) bool {
	return common.IsHexAddress(s) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"))
}

// ParseQuantity parses a JSON-RPC quantity given either as 0x-hex or as a decimal string.
// Empty input and a bare 0x prefix parse as zero; values wider than 256 bits are rejected.
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "0x" || s == "0X" {
		return new(big.Int), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}

// FormatEther renders a wei amount as an ether decimal string
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
