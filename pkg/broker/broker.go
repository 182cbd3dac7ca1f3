// Package broker runs the wallet side of WalletConnect sessions: it pairs with dApps,
// turns their call requests into approval prompts and answers them with the wallet.
//
// Every state change happens on the goroutine running Run. Connector callbacks and
// host operations only enqueue work, so requests are handled strictly in arrival
// order with at most one prompt outstanding.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigweihq/wcbroker/pkg/chains"
	"github.com/sigweihq/wcbroker/pkg/chains/evm"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/decoder"
	"github.com/sigweihq/wcbroker/pkg/metrics"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/sigweihq/wcbroker/pkg/types"
)

// Config wires a Broker. Connectors, Wallet, Gateway and Registry are required.
type Config struct {
	Connectors ConnectorFactory
	Wallet     Wallet
	Gateway    ApprovalGateway
	Registry   *chains.Registry

	// Store defaults to an in-memory store
	Store store.Store

	// ABIs resolves contract ABIs for transaction decoding; decoding is skipped when nil
	ABIs decoder.ABIFetcher

	// Clients defaults to evm.DefaultClientCache()
	Clients *evm.ClientCache

	// Auth is checked before every Connect; AuthRetryable picks the errors retried
	// once with a forced refresh (every error when nil)
	Auth          Authenticator
	AuthRetryable func(error) bool

	// Faults observes transport failures; they are logged when nil
	Faults FaultHandler

	Metrics metrics.Recorder
	Logger  *slog.Logger

	ScanTimeout         time.Duration // constants.ScanTimeout when zero
	PromptTimeout       time.Duration // zero waits for the user indefinitely
	ReceiptPollInterval time.Duration // constants.ReceiptPollInterval when zero
}

// Broker is the session broker state machine
type Broker struct {
	factory  ConnectorFactory
	wallet   Wallet
	gateway  ApprovalGateway
	registry *chains.Registry
	store    store.Store
	decoder  *decoder.Decoder
	clients  *evm.ClientCache
	auth     Authenticator
	retry    func(error) bool
	faults   FaultHandler
	recorder metrics.Recorder
	logger   *slog.Logger

	scanTimeout   time.Duration
	promptTimeout time.Duration
	pollInterval  time.Duration

	queue   *queue
	running atomic.Bool
	done    chan struct{}

	// owned by the Run goroutine
	connector      Connector
	generation     uint64
	reconnectTried bool
	activeChain    *types.Chain

	// snapshot for readers on other goroutines
	mu      sync.RWMutex
	state   types.BrokerState
	session *types.Session

	lifetime context.Context
	stop     context.CancelFunc
	watchers sync.WaitGroup
	watchMu  sync.Mutex
	watching map[string]struct{}
}

// New creates a broker in the IDLE state. Call Run to start processing.
func New(cfg Config) (*Broker, error) {
	switch {
	case cfg.Connectors == nil:
		return nil, errors.New("broker: connector factory is required")
	case cfg.Wallet == nil:
		return nil, errors.New("broker: wallet is required")
	case cfg.Gateway == nil:
		return nil, errors.New("broker: approval gateway is required")
	case cfg.Registry == nil:
		return nil, errors.New("broker: chain registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	clients := cfg.Clients
	if clients == nil {
		clients = evm.DefaultClientCache()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	scanTimeout := cfg.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = constants.ScanTimeout
	}
	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = constants.ReceiptPollInterval
	}

	b := &Broker{
		factory:       cfg.Connectors,
		wallet:        cfg.Wallet,
		gateway:       cfg.Gateway,
		registry:      cfg.Registry,
		store:         st,
		decoder:       decoder.New(cfg.ABIs, cfg.Wallet, logger),
		clients:       clients,
		auth:          cfg.Auth,
		retry:         cfg.AuthRetryable,
		faults:        cfg.Faults,
		recorder:      recorder,
		logger:        logger,
		scanTimeout:   scanTimeout,
		promptTimeout: cfg.PromptTimeout,
		pollInterval:  pollInterval,
		queue:         newQueue(),
		done:          make(chan struct{}),
		state:         types.StateIdle,
		watching:      make(map[string]struct{}),
	}
	if b.faults == nil {
		b.faults = func(err error) {
			logger.Error("walletconnect transport failure", "error", err)
		}
	}
	b.lifetime, b.stop = context.WithCancel(context.Background())
	return b, nil
}

// Run drains the inbound queue until ctx ends. It may be called once.
func (b *Broker) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(b.done)

	b.logger.Info("session broker started")
	for {
		ev, ok := b.queue.pop(ctx)
		if !ok {
			break
		}
		b.dispatch(ctx, ev)
	}

	for _, ev := range b.queue.close() {
		if ev.reply != nil {
			ev.reply <- ErrClosed
		}
	}
	if b.connector != nil {
		b.detach()
	}
	b.logger.Info("session broker stopped")
	return ctx.Err()
}

// Close stops the background receipt watchers and waits for them.
// Pending entries of unfinished watches stay in the store for ResumePending.
func (b *Broker) Close() {
	b.stop()
	b.watchers.Wait()
}

// Wait blocks until every background receipt watcher has finished
func (b *Broker) Wait() {
	b.watchers.Wait()
}

// Connect creates a connector for target and starts pairing.
// A connector holding an unconsumed pairing request is prompted for right away.
func (b *Broker) Connect(ctx context.Context, target Target) error {
	return b.do(ctx, func(runCtx context.Context) error {
		return b.connect(runCtx, target)
	})
}

// Reconnect restores the persisted session. It is attempted once per broker and
// only while no connector exists; ok reports whether a session was restored.
func (b *Broker) Reconnect(ctx context.Context) (ok bool, err error) {
	err = b.do(ctx, func(runCtx context.Context) error {
		ok, err = b.reconnect(runCtx)
		return err
	})
	return ok, err
}

// Disconnect ends the session from the wallet side
func (b *Broker) Disconnect(ctx context.Context) error {
	return b.do(ctx, func(runCtx context.Context) error {
		b.disconnect(runCtx, "host")
		return nil
	})
}

// SwitchChain moves the active session to chain.
// The session is unchanged when the connector rejects the update.
func (b *Broker) SwitchChain(ctx context.Context, chain types.ChainDescriptor) error {
	return b.do(ctx, func(runCtx context.Context) error {
		if b.connector == nil {
			return ErrNoConnector
		}
		return b.switchChain(runCtx, chain)
	})
}

// State returns the current lifecycle state
func (b *Broker) State() types.BrokerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Session returns a copy of the established session
func (b *Broker) Session() (types.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return types.Session{}, false
	}
	return b.session.Clone(), true
}

// Chain returns the chain the active session is bound to
func (b *Broker) Chain(ctx context.Context) (types.Chain, error) {
	session, ok := b.Session()
	if !ok {
		return types.Chain{}, ErrNoConnector
	}
	return b.registry.Chain(ctx, session.ChainID)
}

// do runs command on the Run goroutine and waits for its result
func (b *Broker) do(ctx context.Context, command func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	if !b.queue.push(event{kind: eventCommand, command: command, reply: reply}) {
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-b.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) dispatch(ctx context.Context, ev event) {
	if ev.kind == eventCommand {
		ev.reply <- ev.command(ctx)
		return
	}

	if b.connector == nil || ev.generation != b.generation {
		b.logger.Debug("dropping event from replaced connector", "event", ev.name)
		return
	}

	if ev.err != nil {
		b.transportFailure(&TransportError{Event: ev.name, Err: ev.err})
		return
	}

	switch ev.name {
	case EventPairingRequest:
		b.handlePairing(ctx, ev.payload)
	case EventCallRequest:
		b.handleCallRequest(ctx, ev.payload)
	case EventDisconnect:
		b.disconnect(ctx, "peer")
	default:
		b.logger.Warn("unknown connector event", "event", ev.name)
	}
}

func (b *Broker) setState(state types.BrokerState) {
	b.mu.Lock()
	previous := b.state
	b.state = state
	b.mu.Unlock()

	if previous != state {
		b.logger.Debug("broker state changed", "from", previous, "to", state)
	}
}

func (b *Broker) setSession(session *types.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if session == nil {
		b.session = nil
		return
	}
	clone := session.Clone()
	b.session = &clone
}

func (b *Broker) currentSession() types.Session {
	session, _ := b.Session()
	return session
}

// subscribe routes the connector's events into the queue, tagged with its generation
func (b *Broker) subscribe(conn Connector, generation uint64) {
	for _, name := range connectorEvents {
		name := name
		conn.Subscribe(name, func(err error, payload json.RawMessage) {
			b.queue.push(event{
				kind:       eventConnector,
				name:       name,
				generation: generation,
				payload:    append(json.RawMessage(nil), payload...),
				err:        err,
			})
		})
	}
}

// detach unsubscribes the active connector and forgets it
func (b *Broker) detach() {
	for _, name := range connectorEvents {
		b.connector.Unsubscribe(name)
	}
	b.connector = nil
	b.activeChain = nil
}

func (b *Broker) transportFailure(err *TransportError) {
	b.faults(err)
	if b.connector != nil {
		b.detach()
	}
	b.setSession(nil)
	b.setState(types.StateDisconnected)
}

// lookupChain resolves chainID through the registry, falling back to rpcURL alone
func (b *Broker) lookupChain(ctx context.Context, chainID int64, rpcURL string) *types.Chain {
	chain, err := b.registry.Chain(ctx, chainID)
	if err == nil {
		if rpcURL != "" && chains.RPCURL(chain) != rpcURL {
			chain.RPCURLs = append([]string{rpcURL}, chain.RPCURLs...)
		}
		return &chain
	}
	if rpcURL != "" {
		return &types.Chain{ChainID: chainID, RPCURLs: []string{rpcURL}}
	}
	b.logger.Warn("chain not in registry", "chainId", chainID, "error", err)
	return nil
}

func (b *Broker) persistSession(ctx context.Context, session types.Session) {
	if err := store.SaveSession(ctx, b.store, session); err != nil {
		b.logger.Error("failed to persist session", "peer", session.PeerMeta.Name, "error", err)
	}
}

func (b *Broker) String() string {
	return fmt.Sprintf("broker(%s)", b.State())
}
