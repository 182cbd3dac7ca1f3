package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// WalletConnect v1 pairing URIs follow EIP-1328: wc:<topic>@<version>?bridge=<url>&key=<hex>
var eip1328URIFormat = regexp.MustCompile(`wc:([\w-]+)@(\d+)\?bridge=.*&key=[a-z0-9]+`)

// PairingURI is a parsed WalletConnect pairing URI
type PairingURI struct {
	Raw     string
	Topic   string
	Version int
	Bridge  string
	Key     string
}

// ParseURI validates a WalletConnect URI read from a QR code or deep link
func ParseURI(link string) (*PairingURI, error) {
	match := eip1328URIFormat.FindStringSubmatch(link)
	if match == nil {
		return nil, fmt.Errorf("invalid WalletConnect URI: %q", link)
	}

	version, err := strconv.Atoi(match[2])
	if err != nil {
		return nil, fmt.Errorf("invalid WalletConnect URI version %q: %w", match[2], err)
	}

	// Everything after '?' is a regular query string
	query := match[0][len("wc:")+len(match[1])+1+len(match[2])+1:]
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("invalid WalletConnect URI query: %w", err)
	}

	return &PairingURI{
		Raw:     link,
		Topic:   match[1],
		Version: version,
		Bridge:  values.Get("bridge"),
		Key:     values.Get("key"),
	}, nil
}
