package types

import (
	"encoding/json"
	"math/big"
)

// OperationKind is the semantic operation an approval prompt is about
type OperationKind string

const (
	KindConnect         OperationKind = "CONNECT"
	KindSignMessage     OperationKind = "SIGN_MESSAGE"
	KindSignTransaction OperationKind = "SIGN_TRANSACTION"
	KindSendTransaction OperationKind = "SEND_TRANSACTION"
	KindSwitchChain     OperationKind = "SWITCH_CHAIN"
	KindScanQR          OperationKind = "SCAN_QR"
	KindUnsupported     OperationKind = "UNSUPPORTED"
)

// IsTransaction reports whether the kind carries a transaction object
func (k OperationKind) IsTransaction() bool {
	return k == KindSignTransaction || k == KindSendTransaction
}

// BrokerState is the session broker's lifecycle state
type BrokerState string

const (
	StateIdle             BrokerState = "IDLE"
	StatePairing          BrokerState = "PAIRING"
	StateActive           BrokerState = "ACTIVE"
	StateAwaitingApproval BrokerState = "AWAITING_APPROVAL"
	StateDisconnected     BrokerState = "DISCONNECTED"
)

// PeerMeta is the metadata a dApp declares when pairing
type PeerMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

// Session is the negotiated relationship with a remote peer
type Session struct {
	PeerID    string   `json:"peerId"`
	PeerMeta  PeerMeta `json:"peerMeta"`
	ChainID   int64    `json:"chainId"`
	Accounts  []string `json:"accounts"`
	Connected bool     `json:"connected"`
	RPCURL    string   `json:"rpcUrl,omitempty"`

	// Transport is opaque connector state needed to restore the pairing (keys, bridge, topic)
	Transport json.RawMessage `json:"transport,omitempty"`
}

// Clone returns a deep copy of the session
func (s Session) Clone() Session {
	c := s
	c.Accounts = append([]string(nil), s.Accounts...)
	c.PeerMeta.Icons = append([]string(nil), s.PeerMeta.Icons...)
	if s.Transport != nil {
		c.Transport = append(json.RawMessage(nil), s.Transport...)
	}
	return c
}

// SessionUpdate is applied to the connector's session on chain switches
type SessionUpdate struct {
	ChainID  int64    `json:"chainId"`
	Accounts []string `json:"accounts"`
	RPCURL   string   `json:"rpcUrl,omitempty"`
}

// Chain describes a supported EVM chain
type Chain struct {
	ChainID      int64    `json:"chainId"`
	Name         string   `json:"name"`
	RPCURLs      []string `json:"rpcUrls"`      // first = primary
	ExplorerURLs []string `json:"explorerUrls"` // first = primary
}

// PairingRequest is the payload of a pairing-request event
type PairingRequest struct {
	PeerID   string   `json:"peerId"`
	PeerMeta PeerMeta `json:"peerMeta"`
	ChainID  *int64   `json:"chainId,omitempty"`
}

// CallRequest is the payload of a call-request event
type CallRequest struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// TransactionRequest is the transaction object dApps pass to eth_signTransaction / eth_sendTransaction
type TransactionRequest struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Data     string `json:"data,omitempty"`
	Gas      string `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	Value    string `json:"value,omitempty"`
	Nonce    string `json:"nonce,omitempty"`

	// Extra keeps every other field exactly as the dApp sent it
	// (maxFeePerGas, maxPriorityFeePerGas, type, chainId, accessList, gasLimit, ...)
	Extra map[string]json.RawMessage `json:"-"`
}

// transactionFields has the same fields as TransactionRequest without its JSON methods
type transactionFields TransactionRequest

func (t *TransactionRequest) field(key string) *string {
	switch key {
	case "from":
		return &t.From
	case "to":
		return &t.To
	case "data":
		return &t.Data
	case "gas":
		return &t.Gas
	case "gasPrice":
		return &t.GasPrice
	case "value":
		return &t.Value
	case "nonce":
		return &t.Nonce
	}
	return nil
}

// UnmarshalJSON reads the named fields as strings (numbers keep their literal form)
// and collects the rest into Extra
func (t *TransactionRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*t = TransactionRequest{}
	for key, raw := range fields {
		if target := t.field(key); target != nil {
			*target = scalarString(raw)
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]json.RawMessage)
		}
		t.Extra[key] = raw
	}
	return nil
}

// MarshalJSON writes the named fields merged with Extra
func (t TransactionRequest) MarshalJSON() ([]byte, error) {
	named, err := json.Marshal(transactionFields(t))
	if err != nil || len(t.Extra) == 0 {
		return named, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(named, &merged); err != nil {
		return nil, err
	}
	for key, raw := range t.Extra {
		if t.field(key) != nil {
			continue
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// ChainDescriptor is the target chain of wallet_addEthereumChain / wallet_switchEthereumChain
type ChainDescriptor struct {
	ChainID           int64    `json:"chainId"`
	Name              string   `json:"name,omitempty"`
	RPCURLs           []string `json:"rpcUrls,omitempty"`
	BlockExplorerURLs []string `json:"blockExplorerUrls,omitempty"`
}

// DecodedParam is one decoded call argument
type DecodedParam struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	IsAddress bool   `json:"isAddress"` // eligible for explorer linking
}

// DecodedCall is the best-effort decoding of a transaction's call data
type DecodedCall struct {
	MethodName  string         `json:"methodName"`
	Parameters  []DecodedParam `json:"parameters"`
	DecodeError string         `json:"decodeError,omitempty"`
}

// GasStatus reports whether the account can pay for the transaction
type GasStatus struct {
	Balance      *big.Int `json:"balance"`
	GasRequired  *big.Int `json:"gasRequired"`
	HasEnoughGas bool     `json:"hasEnoughGas"`
}

// NewGasStatus computes gas sufficiency as balance >= gas * gasPrice
func NewGasStatus(balance, gas, gasPrice *big.Int) GasStatus {
	if balance == nil {
		balance = new(big.Int)
	}
	required := new(big.Int)
	if gas != nil && gasPrice != nil {
		required.Mul(gas, gasPrice)
	}
	return GasStatus{
		Balance:      new(big.Int).Set(balance),
		GasRequired:  required,
		HasEnoughGas: balance.Cmp(required) >= 0,
	}
}

// PendingTransaction is persisted between a send-transaction's hash and its receipt
type PendingTransaction struct {
	TxHash  string      `json:"txHash"`
	Payload CallRequest `json:"payload"`

	// ChainID is the chain the transaction was sent on; zero in entries written without it
	ChainID int64 `json:"chainId,omitempty"`
}
