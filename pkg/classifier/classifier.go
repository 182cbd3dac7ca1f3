// Package classifier maps inbound WalletConnect call requests onto the operation
// the user is asked to approve. Classification is pure: malformed parameters degrade
// to defaults instead of failing.
package classifier

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/sigweihq/wcbroker/pkg/utils"
)

// Result is the classification of one call request
type Result struct {
	Kind   types.OperationKind
	Method string

	// Message is the text (or typed-data JSON) shown for SIGN_MESSAGE
	Message string

	// Transaction is set for SIGN_TRANSACTION and SEND_TRANSACTION, with gas and data defaulted
	Transaction *types.TransactionRequest

	// Chain is the target of SWITCH_CHAIN
	Chain *types.ChainDescriptor

	// ScanPattern optionally constrains SCAN_QR results
	ScanPattern string
}

// Classify determines the operation kind of a call request.
// Rules are checked in order and the first match wins.
func Classify(req types.CallRequest) Result {
	params, object := splitParams(req.Params)
	method := req.Method
	result := Result{Kind: types.KindUnsupported, Method: method}

	switch {
	case isSignMethod(method):
		result.Kind = types.KindSignMessage
		result.Message = signMessage(method, params)

	case method == constants.MethodSignTransaction || method == constants.MethodSendTransaction:
		result.Kind = types.KindSendTransaction
		if method == constants.MethodSignTransaction {
			result.Kind = types.KindSignTransaction
		}
		result.Transaction = transaction(params)

	case method == constants.MethodAddEthereumChain || method == constants.MethodSwitchEthereumChain:
		result.Kind = types.KindSwitchChain
		if object == nil && len(params) > 0 {
			object = params[0]
		}
		result.Chain = chainDescriptor(object)

	case method == constants.MethodScanQRCode:
		result.Kind = types.KindScanQR
		result.ScanPattern = param(params, 0)
	}

	return result
}

func isSignMethod(method string) bool {
	return method == constants.MethodEthSign ||
		method == constants.MethodPersonalSign ||
		strings.Contains(method, constants.MethodSignTypedData)
}

func signMessage(method string, params []json.RawMessage) string {
	switch method {
	case constants.MethodEthSign:
		return param(params, 1)

	case constants.MethodPersonalSign:
		message := param(params, 0)
		if text, ok := utils.HexToUTF8(message); ok {
			return text
		}
		return message
	}

	// signTypedData variants: dApps disagree on whether the address comes first
	first := param(params, 0)
	if utils.IsAddress(first) {
		return param(params, 1)
	}
	return first
}

func transaction(params []json.RawMessage) *types.TransactionRequest {
	tx := &types.TransactionRequest{}
	if len(params) > 0 {
		if err := json.Unmarshal(params[0], tx); err != nil {
			*tx = types.TransactionRequest{}
		}
	}

	// A number must be passed back through the bridge
	if tx.Gas == "" {
		tx.Gas = constants.DefaultGasLimit
	}
	// Fallback for dApps sending no data
	if tx.Data == "" {
		tx.Data = constants.EmptyData
	}
	return tx
}

func chainDescriptor(raw json.RawMessage) *types.ChainDescriptor {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &types.ChainDescriptor{}
	}

	descriptor := &types.ChainDescriptor{
		Name:              scalar(fields["name"]),
		RPCURLs:           stringList(fields["rpcUrls"]),
		BlockExplorerURLs: stringList(fields["blockExplorerUrls"]),
	}
	if descriptor.Name == "" {
		descriptor.Name = scalar(fields["chainName"])
	}
	if len(descriptor.RPCURLs) == 0 {
		descriptor.RPCURLs = stringList(fields["rpc"])
	}
	if id, err := utils.ParseQuantity(scalar(fields["chainId"])); err == nil && id.IsInt64() {
		descriptor.ChainID = id.Int64()
	}
	return descriptor
}

// splitParams returns params as a list, or as an object when the dApp sent one
func splitParams(raw json.RawMessage) ([]json.RawMessage, json.RawMessage) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		return nil, trimmed
	}

	var list []json.RawMessage
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, nil
	}
	return list, nil
}

// param returns params[i] as display text
func param(params []json.RawMessage, i int) string {
	if i >= len(params) {
		return ""
	}
	return scalar(params[i])
}

// scalar renders a JSON value as text: strings are unquoted, null is empty,
// numbers and objects keep their JSON form
func scalar(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func stringList(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}
