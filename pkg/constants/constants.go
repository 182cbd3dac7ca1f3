package constants

import "time"

const (
	DelayBetweenRPCCalls      = 200              // delay in milliseconds between RPC calls
	TransactionReceiptTimeout = 2 * time.Second  // timeout for a single receipt lookup
	BalanceTimeout            = 10 * time.Second // timeout for a balance lookup
	ReceiptPollInterval       = 4 * time.Second  // interval between receipt lookups while watching a tx
	HTTPTimeout               = 30 * time.Second // timeout for explorer, directory and auth requests
	TLSHandshakeTimeout       = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout     = 20 * time.Second // timeout for response header
	ExpectContinueTimeout     = 1 * time.Second  // timeout for expect continue
	ScanTimeout               = 2 * time.Minute  // how long a scan request may stay unresolved
	MaxResponseBodySize       = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)
	MaxAuthAttempts           = 2                // one attempt plus one forced refresh
)

// Persisted state layout
const (
	SessionKey          = "walletconnect"
	PendingTxKeyPrefix  = "PENDING_"
	DefaultChainID      = 1
	DefaultGasLimit     = "8000000"
	EmptyData           = "0x"
	DefaultDirectoryURL = "https://chainid.network/chains.json"
)

// Protocol reasons sent back to the peer
const (
	ReasonUserDecline        = "USER_DECLINE"
	ReasonUserTerminated     = "USER_TERMINATED"
	ReasonMethodNotSupported = "METHOD_NOT_SUPPORTED"
	ReasonScanTimeout        = "SCAN_TIMEOUT"
	ReasonInvalidScanPattern = "INVALID_SCAN_PATTERN"
	ReasonUnknownChain       = "UNKNOWN_CHAIN"
)

// Request methods
const (
	MethodEthSign             = "eth_sign"
	MethodPersonalSign        = "personal_sign"
	MethodSignTypedData       = "signTypedData" // matched as a substring
	MethodSignTransaction     = "eth_signTransaction"
	MethodSendTransaction     = "eth_sendTransaction"
	MethodAddEthereumChain    = "wallet_addEthereumChain"
	MethodSwitchEthereumChain = "wallet_switchEthereumChain"
	MethodScanQRCode          = "wallet_scanQrCode"
)

const (
	ChainIDEthereum = 1
	ChainIDFuse     = 122
	ChainIDCelo     = 42220
)

// OfficialRPCEndpoints are placed ahead of directory endpoints for chains the wallet uses daily
var OfficialRPCEndpoints = map[int64][]string{
	ChainIDEthereum: {"https://cloudflare-eth.com"},
	ChainIDFuse:     {"https://rpc.fuse.io"},
	ChainIDCelo:     {"https://forno.celo.org"},
}

// ExplorerOverrides replace the directory's first explorer for chains whose listed explorer has no ABI API
var ExplorerOverrides = map[int64]string{
	ChainIDFuse: "https://explorer.fuse.io",
}
