package broker

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/wcbroker/pkg/types"
)

// Connector events
const (
	EventPairingRequest = "pairing-request"
	EventCallRequest    = "call-request"
	EventDisconnect     = "disconnect"
)

var connectorEvents = []string{EventPairingRequest, EventCallRequest, EventDisconnect}

// EventHandler receives a connector event. A non-nil err is a transport failure.
type EventHandler func(err error, payload json.RawMessage)

// Connector is one WalletConnect transport session with a remote peer
type Connector interface {
	// Pending reports an unconsumed incoming pairing request
	Pending() bool
	Connected() bool
	Session() types.Session

	ApproveSession(ctx context.Context, chainID int64, accounts []string) error
	RejectSession(ctx context.Context, reason string) error
	KillSession(ctx context.Context, reason string) error
	UpdateSession(ctx context.Context, update types.SessionUpdate) error

	ApproveRequest(ctx context.Context, id int64, result any) error
	RejectRequest(ctx context.Context, id int64, errMsg string) error

	Subscribe(event string, handler EventHandler)
	Unsubscribe(event string)
}

// Target selects what a connector is created for: a fresh pairing URI or a persisted session
type Target struct {
	URI     string
	Session *types.Session
}

// ConnectorFactory creates connectors
type ConnectorFactory func(ctx context.Context, target Target) (Connector, error)

// TxSubmission is a broadcast transaction. The hash is known first; the receipt follows once mined.
type TxSubmission interface {
	TransactionHash(ctx context.Context) (string, error)
	Receipt(ctx context.Context) (*ethtypes.Receipt, error)
}

// Wallet holds the key the broker signs with
type Wallet interface {
	Account() string

	Sign(ctx context.Context, message string) (string, error)
	PersonalSign(ctx context.Context, message string) (string, error)
	SignTypedData(ctx context.Context, data string) (string, error)
	SignTransaction(ctx context.Context, tx types.TransactionRequest) (string, error)
	SendRawTransaction(ctx context.Context, tx types.TransactionRequest, client *ethclient.Client) (TxSubmission, error)

	// ValidateContractTX checks a decoded contract call; an error marks it as likely to fail
	ValidateContractTX(ctx context.Context, contractABI abi.ABI, tx types.TransactionRequest, decoded types.DecodedCall, client *ethclient.Client) error
}

// PromptRequest is what the user is asked to approve
type PromptRequest struct {
	Kind    types.OperationKind
	Session types.Session

	// Payload is the originating call request; nil for CONNECT
	Payload *types.CallRequest

	// Message depends on Kind: the text to sign, a *decoder.TransactionView,
	// the "name: rpc" line of a chain switch, the scan pattern, or the pairing request
	Message any

	AccountAddress string
	ExplorerURL    string
}

// PromptResult is the user's answer
type PromptResult struct {
	Approved bool

	// ScanResult carries the scanned text for SCAN_QR
	ScanResult string
}

// ApprovalGateway shows prompts to the user. Only one prompt is outstanding at a time.
type ApprovalGateway interface {
	Prompt(ctx context.Context, req PromptRequest) (PromptResult, error)
}

// FailureReporter is implemented by gateways that want to show wallet failures
type FailureReporter interface {
	ReportFailure(ctx context.Context, req PromptRequest, err error)
}

// ScanFeedback is implemented by gateways that flag scans not matching the requested pattern
type ScanFeedback interface {
	InvalidScan(ctx context.Context, req PromptRequest, scanned string)
}

// Authenticator is the wallet backend login checked before connecting
type Authenticator interface {
	EnsureSession(ctx context.Context, refresh bool) error
}

// FaultHandler observes transport failures
type FaultHandler func(err error)
