package evm

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientCache memoizes one JSON-RPC client per RPC URL
type ClientCache struct {
	clients map[string]*ethclient.Client
	dial    func(rawurl string) (*ethclient.Client, error)
	mu      sync.Mutex
}

var (
	defaultClientCache     *ClientCache
	defaultClientCacheOnce sync.Once
)

// NewClientCache creates an empty client cache
func NewClientCache() *ClientCache {
	return &ClientCache{
		clients: make(map[string]*ethclient.Client),
		dial:    ethclient.Dial,
	}
}

// DefaultClientCache returns the process-wide client cache, creating it on first use
func DefaultClientCache() *ClientCache {
	defaultClientCacheOnce.Do(func() {
		defaultClientCache = NewClientCache()
	})
	return defaultClientCache
}

// Client returns the cached client for url, dialing it on first use
func (c *ClientCache) Client(url string) (*ethclient.Client, error) {
	if url == "" {
		return nil, ErrNoEndpoints
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[url]; ok {
		return client, nil
	}

	client, err := c.dial(url)
	if err != nil {
		return nil, &RPCError{Endpoint: url, Err: fmt.Errorf("failed to dial: %w", err)}
	}
	c.clients[url] = client
	return client, nil
}

// Len returns the number of cached clients
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Close closes every cached client and empties the cache
func (c *ClientCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, client := range c.clients {
		client.Close()
		delete(c.clients, url)
	}
}
