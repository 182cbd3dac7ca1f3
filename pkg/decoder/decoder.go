// Package decoder turns a raw transaction request into what the user reviews before
// approving it: the decoded contract call (when the explorer knows the contract's ABI),
// explorer links for every address involved, and whether the account can pay for gas.
package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/sigweihq/wcbroker/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// ABIFetcher resolves the verified ABI of a contract; "" means unknown
type ABIFetcher interface {
	FetchABI(ctx context.Context, explorerURL, contractAddress string) (string, error)
}

// BalanceReader returns an account's native balance in wei
type BalanceReader interface {
	BalanceAt(ctx context.Context, account string) (*big.Int, error)
}

// ContractValidator checks a decoded contract call before it is shown.
// A returned error marks the call as likely to fail; it never blocks the prompt.
type ContractValidator interface {
	ValidateContractTX(ctx context.Context, contractABI abi.ABI, tx types.TransactionRequest, decoded types.DecodedCall, client *ethclient.Client) error
}

// Environment is the chain context a transaction is described in
type Environment struct {
	Account     string
	ExplorerURL string
	Balances    BalanceReader

	// Client is handed to the ContractValidator; may be nil
	Client *ethclient.Client
}

// AddressLink points an address at its explorer page
type AddressLink struct {
	Label   string `json:"label"`
	Address string `json:"address"`
	URL     string `json:"url"`
}

// TransactionView is the augmented transaction shown in an approval prompt
type TransactionView struct {
	Transaction types.TransactionRequest `json:"transaction"`

	// Decoded is nil when no ABI resolves for the target contract
	Decoded         *types.DecodedCall `json:"decoded,omitempty"`
	ValidationError string             `json:"validationError,omitempty"`

	GasStatus        types.GasStatus `json:"gasStatus"`
	BalanceEther     string          `json:"balanceEther"`
	GasRequiredEther string          `json:"gasRequiredEther"`
	ValueEther       string          `json:"valueEther"`

	Links []AddressLink `json:"links,omitempty"`
}

// Decoder prepares transaction views
type Decoder struct {
	abis      ABIFetcher
	validator ContractValidator
	logger    *slog.Logger
}

// New creates a decoder. validator may be nil.
func New(abis ABIFetcher, validator ContractValidator, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{abis: abis, validator: validator, logger: logger}
}

// Describe decodes tx and fetches the account balance in parallel.
// Only the balance lookup can fail the call; decoding always degrades.
func (d *Decoder) Describe(ctx context.Context, tx types.TransactionRequest, env Environment) (*TransactionView, error) {
	if env.Balances == nil {
		return nil, fmt.Errorf("no balance reader for account %s", env.Account)
	}

	var (
		decoded         *types.DecodedCall
		validationError string
		balance         *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		decoded, validationError = d.decode(gctx, tx, env)
		return nil
	})
	g.Go(func() error {
		var err error
		balance, err = env.Balances.BalanceAt(gctx, env.Account)
		if err != nil {
			return fmt.Errorf("failed to fetch balance: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gas := quantity(tx.Gas)
	gasPrice := quantity(tx.GasPrice)
	status := types.NewGasStatus(balance, gas, gasPrice)

	view := &TransactionView{
		Transaction:      tx,
		Decoded:          decoded,
		ValidationError:  validationError,
		GasStatus:        status,
		BalanceEther:     utils.FormatEther(status.Balance),
		GasRequiredEther: utils.FormatEther(status.GasRequired),
		ValueEther:       utils.FormatEther(quantity(tx.Value)),
		Links:            links(env.ExplorerURL, tx, decoded),
	}
	return view, nil
}

// decode resolves the target's ABI and decodes the call data.
// Returns a nil call when no ABI resolves.
func (d *Decoder) decode(ctx context.Context, tx types.TransactionRequest, env Environment) (*types.DecodedCall, string) {
	if d.abis == nil || env.ExplorerURL == "" || !hasCallData(tx.Data) || !utils.IsAddress(tx.To) {
		return nil, ""
	}

	d.logger.Debug("fetching contract abi", "explorer", env.ExplorerURL, "contract", tx.To)
	raw, err := d.abis.FetchABI(ctx, env.ExplorerURL, tx.To)
	if err != nil {
		d.logger.Warn("failed to fetch contract abi", "contract", tx.To, "error", err)
		return nil, ""
	}
	if raw == "" {
		return nil, ""
	}

	contractABI, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		d.logger.Warn("failed to parse contract abi", "contract", tx.To, "error", err)
		return nil, ""
	}

	call := DecodeCall(contractABI, tx.Data)
	if call.DecodeError != "" || d.validator == nil {
		return &call, ""
	}

	if err := d.validator.ValidateContractTX(ctx, contractABI, tx, call, env.Client); err != nil {
		d.logger.Info("contract call validation failed", "contract", tx.To, "method", call.MethodName, "error", err)
		return &call, err.Error()
	}
	return &call, ""
}

// DecodeCall decodes hex call data against contractABI.
// Failures are reported in DecodeError.
func DecodeCall(contractABI abi.ABI, data string) types.DecodedCall {
	raw, err := hexutil.Decode(data)
	if err != nil {
		return types.DecodedCall{DecodeError: fmt.Sprintf("invalid call data: %v", err)}
	}
	if len(raw) < 4 {
		return types.DecodedCall{DecodeError: "call data shorter than a method selector"}
	}

	method, err := contractABI.MethodById(raw[:4])
	if err != nil {
		return types.DecodedCall{DecodeError: err.Error()}
	}

	values, err := method.Inputs.Unpack(raw[4:])
	if err != nil {
		return types.DecodedCall{MethodName: method.RawName, DecodeError: err.Error()}
	}

	params := make([]types.DecodedParam, 0, len(method.Inputs))
	for i, input := range method.Inputs {
		if i >= len(values) {
			break
		}
		params = append(params, types.DecodedParam{
			Name:      input.Name,
			Type:      input.Type.String(),
			Value:     formatValue(values[i]),
			IsAddress: input.Type.T == abi.AddressTy,
		})
	}
	return types.DecodedCall{MethodName: method.RawName, Parameters: params}
}

// AddressURL returns the explorer page of address
func AddressURL(explorerURL, address string) string {
	if explorerURL == "" || !utils.IsAddress(address) {
		return ""
	}
	return strings.TrimSuffix(explorerURL, "/") + "/address/" + address
}

func links(explorerURL string, tx types.TransactionRequest, decoded *types.DecodedCall) []AddressLink {
	if explorerURL == "" {
		return nil
	}

	var out []AddressLink
	add := func(label, address string) {
		if url := AddressURL(explorerURL, address); url != "" {
			out = append(out, AddressLink{Label: label, Address: address, URL: url})
		}
	}

	add("from", tx.From)
	add("to", tx.To)
	if decoded != nil {
		for _, p := range decoded.Parameters {
			if p.IsAddress {
				add(p.Name, p.Value)
			}
		}
	}
	return out
}

func hasCallData(data string) bool {
	return data != "" && data != "0x" && data != "0X"
}

// quantity parses a hex or decimal quantity; unparseable values count as zero
func quantity(s string) *big.Int {
	v, err := utils.ParseQuantity(s)
	if err != nil {
		return new(big.Int)
	}
	return v
}

func formatValue(v any) string {
	switch value := v.(type) {
	case common.Address:
		return value.Hex()
	case *big.Int:
		return value.String()
	case []byte:
		return hexutil.Encode(value)
	case string:
		return value
	case []common.Address:
		parts := make([]string, len(value))
		for i, a := range value {
			parts[i] = a.Hex()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}

	// fixed-size byte arrays (bytes32 and friends)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		buf := make([]byte, rv.Len())
		for i := range buf {
			buf[i] = byte(rv.Index(i).Uint())
		}
		return hexutil.Encode(buf)
	}
	return fmt.Sprint(v)
}
