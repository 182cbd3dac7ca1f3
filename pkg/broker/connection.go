package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/metrics"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/sigweihq/wcbroker/pkg/utils"
)

func (b *Broker) connect(ctx context.Context, target Target) error {
	if target.URI == "" && target.Session == nil {
		return ErrNoTarget
	}
	if target.URI != "" {
		if _, err := utils.ParseURI(target.URI); err != nil {
			return err
		}
	}

	if b.auth != nil {
		if err := utils.RetryWithRefresh(ctx, b.auth.EnsureSession, b.retry); err != nil {
			return fmt.Errorf("wallet login failed: %w", err)
		}
	}

	conn, err := b.factory(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}

	if b.connector != nil {
		b.detach()
	}
	b.generation++
	b.connector = conn
	b.subscribe(conn, b.generation)
	b.setSession(nil)
	b.setState(types.StatePairing)

	switch {
	case conn.Connected():
		b.logger.Info("walletconnect session restored", "peer", conn.Session().PeerMeta.Name)
		b.bindSession(ctx, conn.Session())

	case conn.Pending():
		// the pairing request was consumed before we subscribed; replay it
		session := conn.Session()
		chainID := session.ChainID
		payload, err := json.Marshal(types.PairingRequest{
			PeerID:   session.PeerID,
			PeerMeta: session.PeerMeta,
			ChainID:  &chainID,
		})
		if err != nil {
			return fmt.Errorf("failed to encode pending pairing request: %w", err)
		}
		b.queue.push(event{kind: eventConnector, name: EventPairingRequest, generation: b.generation, payload: payload})
	}
	return nil
}

func (b *Broker) reconnect(ctx context.Context) (bool, error) {
	if b.connector != nil || b.reconnectTried {
		return false, nil
	}
	b.reconnectTried = true

	session, ok, err := store.LoadSession(ctx, b.store)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	b.logger.Info("reconnecting persisted walletconnect session", "peer", session.PeerMeta.Name, "chainId", session.ChainID)
	if err := b.connect(ctx, Target{Session: &session}); err != nil {
		return false, err
	}
	return b.connector != nil && b.connector.Connected(), nil
}

// parsePairingRequest accepts either the bare request or a JSON-RPC envelope around it
func parsePairingRequest(payload json.RawMessage) (types.PairingRequest, error) {
	var envelope struct {
		Params []types.PairingRequest `json:"params"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Params) > 0 {
		return envelope.Params[0], nil
	}

	var req types.PairingRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return types.PairingRequest{}, fmt.Errorf("invalid pairing request: %w", err)
	}
	return req, nil
}

func (b *Broker) handlePairing(ctx context.Context, payload json.RawMessage) {
	req, err := parsePairingRequest(payload)
	if err != nil {
		b.logger.Warn("ignoring pairing request", "error", err)
		return
	}

	chainID := int64(constants.DefaultChainID)
	if req.ChainID != nil && *req.ChainID != 0 {
		chainID = *req.ChainID
	}
	account := b.wallet.Account()
	proposed := types.Session{
		PeerID:   req.PeerID,
		PeerMeta: req.PeerMeta,
		ChainID:  chainID,
		Accounts: []string{account},
	}

	b.setState(types.StateAwaitingApproval)
	b.logger.Info("pairing request", "peer", req.PeerMeta.Name, "url", req.PeerMeta.URL, "chainId", chainID)

	conn := b.connector
	approved := b.ask(ctx, PromptRequest{
		Kind:           types.KindConnect,
		Session:        proposed,
		Message:        req,
		AccountAddress: account,
	})
	if !approved {
		if err := conn.RejectSession(ctx, constants.ReasonUserDecline); err != nil {
			b.logger.Warn("failed to reject session", "peer", req.PeerMeta.Name, "error", err)
		}
		b.recordRequest("session_request", metrics.OutcomeRejected)
		b.detach()
		b.setSession(nil)
		b.setState(types.StateIdle)
		return
	}

	if err := conn.ApproveSession(ctx, chainID, proposed.Accounts); err != nil {
		b.recordRequest("session_request", metrics.OutcomeFailed)
		b.transportFailure(&TransportError{Event: EventPairingRequest, Err: err})
		return
	}

	proposed.Connected = true
	proposed.Transport = conn.Session().Transport
	b.recordRequest("session_request", metrics.OutcomeApproved)
	b.bindSession(ctx, proposed)
}

// bindSession makes session the active one, persists it and enters ACTIVE
func (b *Broker) bindSession(ctx context.Context, session types.Session) {
	b.activeChain = b.lookupChain(ctx, session.ChainID, session.RPCURL)
	if session.RPCURL == "" && b.activeChain != nil {
		session.RPCURL = chains.RPCURL(*b.activeChain)
	}

	b.setSession(&session)
	b.persistSession(ctx, session)
	b.setState(types.StateActive)
	b.logger.Info("walletconnect session active", "peer", session.PeerMeta.Name, "chainId", session.ChainID)
}

// disconnect tears the session down. origin is "peer" or "host".
func (b *Broker) disconnect(ctx context.Context, origin string) {
	if b.connector != nil {
		if err := b.connector.KillSession(ctx, constants.ReasonUserTerminated); err != nil {
			b.logger.Debug("failed to kill session", "origin", origin, "error", err)
		}
		b.detach()
	}
	if err := store.ClearSession(ctx, b.store); err != nil {
		b.logger.Error("failed to clear persisted session", "error", err)
	}

	b.setSession(nil)
	b.setState(types.StateIdle)
	b.logger.Info("walletconnect session ended", "origin", origin)
}

// resolveChain finds the chain a switch request targets. Chains missing from the
// registry are accepted when the request carries an RPC endpoint for them.
func (b *Broker) resolveChain(ctx context.Context, desc types.ChainDescriptor) (*types.Chain, error) {
	if desc.ChainID == 0 {
		return nil, &chains.UnknownChainError{ChainID: desc.ChainID}
	}

	rpcURL := ""
	if len(desc.RPCURLs) > 0 {
		rpcURL = desc.RPCURLs[0]
	}
	chain := b.lookupChain(ctx, desc.ChainID, rpcURL)
	if chain == nil {
		return nil, &chains.UnknownChainError{ChainID: desc.ChainID}
	}
	if chain.Name == "" {
		chain.Name = desc.Name
	}
	if len(chain.ExplorerURLs) == 0 {
		chain.ExplorerURLs = desc.BlockExplorerURLs
	}
	return chain, nil
}

func (b *Broker) switchChain(ctx context.Context, desc types.ChainDescriptor) error {
	chain, err := b.resolveChain(ctx, desc)
	if err != nil {
		return err
	}
	return b.applyChain(ctx, chain)
}

// applyChain updates the connector first; the local binding only changes once it succeeds
func (b *Broker) applyChain(ctx context.Context, chain *types.Chain) error {
	update := types.SessionUpdate{
		ChainID:  chain.ChainID,
		Accounts: []string{b.wallet.Account()},
		RPCURL:   chains.RPCURL(*chain),
	}
	if err := b.connector.UpdateSession(ctx, update); err != nil {
		return fmt.Errorf("failed to update session chain: %w", err)
	}

	session := b.currentSession()
	session.ChainID = update.ChainID
	session.Accounts = update.Accounts
	session.RPCURL = update.RPCURL
	b.activeChain = chain
	b.setSession(&session)
	b.persistSession(ctx, session)

	b.logger.Info("switched chain", "chainId", chain.ChainID, "name", chain.Name, "rpc", update.RPCURL)
	return nil
}
