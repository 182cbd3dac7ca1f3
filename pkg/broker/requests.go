package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/chains/evm"
	"github.com/sigweihq/wcbroker/pkg/classifier"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/decoder"
	"github.com/sigweihq/wcbroker/pkg/metrics"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/sigweihq/wcbroker/pkg/types"
)

func (b *Broker) handleCallRequest(ctx context.Context, payload json.RawMessage) {
	var req types.CallRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logger.Warn("ignoring malformed call request", "error", err)
		return
	}

	result := classifier.Classify(req)
	b.logger.Info("call request", "id", req.ID, "method", req.Method, "kind", result.Kind)

	b.setState(types.StateAwaitingApproval)
	outcome := b.handleRequest(ctx, req, result)
	b.recordRequest(req.Method, outcome)

	if b.connector != nil && b.State() == types.StateAwaitingApproval {
		b.setState(types.StateActive)
	}
}

func (b *Broker) handleRequest(ctx context.Context, req types.CallRequest, result classifier.Result) string {
	prompt := PromptRequest{
		Kind:           result.Kind,
		Session:        b.currentSession(),
		Payload:        &req,
		AccountAddress: b.wallet.Account(),
	}

	switch result.Kind {
	case types.KindSignMessage:
		return b.handleSign(ctx, prompt, result)
	case types.KindSignTransaction, types.KindSendTransaction:
		return b.handleTransaction(ctx, prompt, result)
	case types.KindSwitchChain:
		return b.handleSwitchChain(ctx, prompt, result)
	case types.KindScanQR:
		return b.handleScan(ctx, prompt, result)
	default:
		return b.handleUnsupported(ctx, prompt)
	}
}

func (b *Broker) handleSign(ctx context.Context, prompt PromptRequest, result classifier.Result) string {
	prompt.Message = result.Message
	if !b.ask(ctx, prompt) {
		return b.decline(ctx, prompt.Payload.ID)
	}

	var (
		signature string
		err       error
	)
	switch {
	case result.Method == constants.MethodEthSign:
		signature, err = b.wallet.Sign(ctx, result.Message)
	case result.Method == constants.MethodPersonalSign:
		signature, err = b.wallet.PersonalSign(ctx, result.Message)
	default:
		signature, err = b.wallet.SignTypedData(ctx, result.Message)
	}
	if err != nil {
		return b.walletFailure(ctx, prompt, err)
	}

	b.approve(ctx, prompt.Payload.ID, signature)
	return metrics.OutcomeApproved
}

func (b *Broker) handleTransaction(ctx context.Context, prompt PromptRequest, result classifier.Result) string {
	id := prompt.Payload.ID
	chain := b.activeChain
	if chain == nil {
		session := b.currentSession()
		chain = b.lookupChain(ctx, session.ChainID, session.RPCURL)
	}
	if chain == nil || len(chain.RPCURLs) == 0 {
		b.reject(ctx, id, constants.ReasonUnknownChain)
		return metrics.OutcomeFailed
	}

	tx := *result.Transaction
	var client *ethclient.Client
	if c, err := b.clients.Client(chains.RPCURL(*chain)); err != nil {
		b.logger.Warn("no rpc client for chain", "chainId", chain.ChainID, "error", err)
	} else {
		client = c
	}

	explorerURL := chains.ExplorerURL(*chain)
	view, err := b.decoder.Describe(ctx, tx, decoder.Environment{
		Account:     prompt.AccountAddress,
		ExplorerURL: explorerURL,
		Balances:    evm.NewRPCClient(chain.ChainID, chain.RPCURLs, b.clients, b.logger),
		Client:      client,
	})
	if err != nil {
		b.logger.Error("failed to prepare transaction", "id", id, "error", err)
		b.reject(ctx, id, err.Error())
		return metrics.OutcomeFailed
	}

	prompt.Message = view
	prompt.ExplorerURL = explorerURL
	if !b.ask(ctx, prompt) {
		return b.decline(ctx, id)
	}

	if result.Kind == types.KindSignTransaction {
		signed, err := b.wallet.SignTransaction(ctx, tx)
		if err != nil {
			return b.walletFailure(ctx, prompt, err)
		}
		b.approve(ctx, id, signed)
		return metrics.OutcomeApproved
	}

	submission, err := b.wallet.SendRawTransaction(ctx, tx, client)
	if err != nil {
		return b.walletFailure(ctx, prompt, err)
	}
	hash, err := submission.TransactionHash(ctx)
	if err != nil {
		return b.walletFailure(ctx, prompt, err)
	}

	pending := types.PendingTransaction{TxHash: hash, Payload: *prompt.Payload, ChainID: chain.ChainID}
	if err := store.PutPendingTransaction(ctx, b.store, pending); err != nil {
		b.logger.Error("failed to persist pending transaction", "hash", hash, "error", err)
	}
	b.watchReceipt(pending, submission)
	b.approve(ctx, id, hash)
	b.logger.Info("transaction sent", "id", id, "hash", hash, "chainId", chain.ChainID)
	return metrics.OutcomeApproved
}

func (b *Broker) handleSwitchChain(ctx context.Context, prompt PromptRequest, result classifier.Result) string {
	id := prompt.Payload.ID
	if result.Chain == nil {
		b.reject(ctx, id, constants.ReasonUnknownChain)
		return metrics.OutcomeFailed
	}
	chain, err := b.resolveChain(ctx, *result.Chain)
	if err != nil {
		b.logger.Warn("switch to unknown chain", "id", id, "chainId", result.Chain.ChainID)
		b.reject(ctx, id, constants.ReasonUnknownChain)
		return metrics.OutcomeFailed
	}

	prompt.Message = switchChainMessage(*result.Chain, *chain)
	if !b.ask(ctx, prompt) {
		return b.decline(ctx, id)
	}

	if err := b.applyChain(ctx, chain); err != nil {
		return b.walletFailure(ctx, prompt, err)
	}
	b.approve(ctx, id, nil)
	return metrics.OutcomeApproved
}

// switchChainMessage renders "<name>: <rpc>", preferring what the peer declared
func switchChainMessage(desc types.ChainDescriptor, chain types.Chain) string {
	name := desc.Name
	if name == "" {
		name = chain.Name
	}
	if name == "" {
		name = fmt.Sprint(chain.ChainID)
	}
	rpcURL := chains.RPCURL(chain)
	if len(desc.RPCURLs) > 0 {
		rpcURL = desc.RPCURLs[0]
	}
	return name + ": " + rpcURL
}

func (b *Broker) handleScan(ctx context.Context, prompt PromptRequest, result classifier.Result) string {
	id := prompt.Payload.ID

	var pattern *regexp.Regexp
	if result.ScanPattern != "" {
		re, err := regexp.Compile(result.ScanPattern)
		if err != nil {
			b.logger.Warn("invalid scan pattern", "id", id, "pattern", result.ScanPattern, "error", err)
			b.reject(ctx, id, constants.ReasonInvalidScanPattern)
			return metrics.OutcomeFailed
		}
		pattern = re
	}
	prompt.Message = result.ScanPattern

	scanCtx, cancel := context.WithTimeout(ctx, b.scanTimeout)
	defer cancel()

	for {
		start := time.Now()
		answer, err := b.gateway.Prompt(scanCtx, prompt)
		b.recorder.ObserveLatency("approval", time.Since(start), map[string]string{metrics.LabelKind: string(prompt.Kind)})

		if err != nil {
			if errors.Is(scanCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				b.logger.Info("scan request timed out", "id", id, "timeout", b.scanTimeout)
				b.reject(ctx, id, constants.ReasonScanTimeout)
				return metrics.OutcomeRejected
			}
			b.logger.Warn("scan prompt failed", "id", id, "error", err)
			return b.decline(ctx, id)
		}
		if !answer.Approved {
			return b.decline(ctx, id)
		}

		scanned := answer.ScanResult
		if pattern != nil {
			scanned = pattern.FindString(answer.ScanResult)
		}
		if scanned != "" {
			b.approve(ctx, id, scanned)
			return metrics.OutcomeApproved
		}

		b.logger.Debug("scan did not match pattern", "id", id, "pattern", result.ScanPattern)
		if feedback, ok := b.gateway.(ScanFeedback); ok {
			feedback.InvalidScan(ctx, prompt, answer.ScanResult)
		}
	}
}

// handleUnsupported rejects the request, then shows the attempt as a non-actionable notice
func (b *Broker) handleUnsupported(ctx context.Context, prompt PromptRequest) string {
	b.reject(ctx, prompt.Payload.ID, constants.ReasonMethodNotSupported)

	prompt.Message = fmt.Sprintf("%s: %s", constants.ReasonMethodNotSupported, prompt.Payload.Method)
	b.ask(ctx, prompt)
	return metrics.OutcomeUnsupported
}

// ask shows prompt and reports approval. Gateway errors count as a rejection.
func (b *Broker) ask(ctx context.Context, prompt PromptRequest) bool {
	if b.promptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.promptTimeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := b.gateway.Prompt(ctx, prompt)
	b.recorder.ObserveLatency("approval", time.Since(start), map[string]string{metrics.LabelKind: string(prompt.Kind)})
	if err != nil {
		b.logger.Warn("approval prompt failed", "kind", prompt.Kind, "error", err)
		return false
	}
	return answer.Approved
}

func (b *Broker) approve(ctx context.Context, id int64, result any) {
	if err := b.connector.ApproveRequest(ctx, id, result); err != nil {
		b.logger.Error("failed to approve request", "id", id, "error", err)
	}
}

func (b *Broker) reject(ctx context.Context, id int64, reason string) {
	if err := b.connector.RejectRequest(ctx, id, reason); err != nil {
		b.logger.Error("failed to reject request", "id", id, "reason", reason, "error", err)
	}
}

func (b *Broker) decline(ctx context.Context, id int64) string {
	b.reject(ctx, id, constants.ReasonUserDecline)
	return metrics.OutcomeRejected
}

// walletFailure rejects with the wallet's error message and lets the gateway show it
func (b *Broker) walletFailure(ctx context.Context, prompt PromptRequest, err error) string {
	b.logger.Error("wallet operation failed", "id", prompt.Payload.ID, "method", prompt.Payload.Method, "error", err)
	b.reject(ctx, prompt.Payload.ID, err.Error())
	if reporter, ok := b.gateway.(FailureReporter); ok {
		reporter.ReportFailure(ctx, prompt, err)
	}
	return metrics.OutcomeFailed
}

func (b *Broker) recordRequest(method, outcome string) {
	b.recorder.IncCounter("request", map[string]string{
		metrics.LabelMethod:  method,
		metrics.LabelOutcome: outcome,
	})
}
