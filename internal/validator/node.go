package validator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/xmr-bridge/internal/chain"
	"github.com/vultisig/xmr-bridge/internal/deposit"
	"github.com/vultisig/xmr-bridge/internal/ledger"
	"github.com/vultisig/xmr-bridge/internal/network"
	"github.com/vultisig/xmr-bridge/internal/proof"
	"github.com/vultisig/xmr-bridge/internal/signing"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	ValidatorID  int
	TotalParties int
	// ListenAddress is host:port of the inbound service.
	ListenAddress string
	Port          int
	// BridgeAddress is the Monero address deposits must be sent to.
	BridgeAddress string
	// EthereumAddress is announced in heartbeats.
	EthereumAddress string

	CheckInterval     time.Duration
	HeartbeatInterval time.Duration
	// MaxPending is how long a claim may wait for confirmations before it fails, and
	// how long a signed operation may wait for the submitter's mint notice.
	MaxPending     time.Duration
	SigningTimeout time.Duration
	// RelayClaims broadcasts accepted claims to the other validators.
	RelayClaims bool
	QueueSize   int
}

type Dependencies struct {
	Transport   *network.Transport
	Coordinator *signing.Coordinator
	Ledger      ledger.Store
	Source      deposit.Source
	Submitter   chain.Submitter
	Prover      proof.Prover
	Policy      proof.Policy
	Metrics     *Metrics
}

// Node is one validator process: inbound service, deposit polling and heartbeats.
type Node struct {
	opts   Options
	deps   Dependencies
	server *network.Server
	queue  *deposit.Queue
	logger *logrus.Entry
	now    func() time.Time

	state  atomic.Int32
	cancel context.CancelFunc
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{}
	deposits   sync.WaitGroup
}

func New(opts Options, deps Dependencies) (*Node, error) {
	if deps.Transport == nil || deps.Coordinator == nil || deps.Ledger == nil || deps.Source == nil {
		return nil, errors.New("transport, coordinator, ledger and source are required")
	}
	if deps.Submitter == nil || deps.Prover == nil || deps.Policy == nil {
		return nil, errors.New("submitter, prover and policy are required")
	}
	if opts.TotalParties < 1 || opts.ValidatorID < 0 || opts.ValidatorID >= opts.TotalParties {
		return nil, fmt.Errorf("validator id %d out of range [0,%d)", opts.ValidatorID, opts.TotalParties)
	}
	if opts.CheckInterval <= 0 || opts.HeartbeatInterval <= 0 {
		return nil, errors.New("check and heartbeat intervals must be positive")
	}
	if opts.SigningTimeout <= 0 {
		opts.SigningTimeout = 30 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	queue, err := deposit.NewQueue(opts.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create claim queue: %w", err)
	}

	n := &Node{
		opts:     opts,
		deps:     deps,
		queue:    queue,
		logger:   logrus.WithFields(logrus.Fields{"service": "validator", "validator_id": opts.ValidatorID}),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	n.server = network.NewServer(network.ServerOptions{
		Transport: deps.Transport,
		Claims:    n,
		Registry:  deps.Metrics.Registry,
		State:     func() string { return n.State().String() },
		Port:      opts.Port,
	})
	deps.Transport.Subscribe(network.MessageClaim, n.onClaim)
	deps.Transport.Subscribe(network.MessageMinted, n.onMinted)
	deps.Transport.Subscribe(network.MessageMintFailed, n.onMintFailed)
	return n, nil
}

func (n *Node) State() State {
	return State(n.state.Load())
}

// setState moves the node forward to s. Moving backwards is ignored.
func (n *Node) setState(s State) {
	for {
		cur := n.state.Load()
		if int32(s) <= cur {
			return
		}
		if n.state.CompareAndSwap(cur, int32(s)) {
			n.logger.WithField("state", s.String()).Info("lifecycle state changed")
			return
		}
	}
}

// Listen binds the inbound service. Run calls it when it has not been called yet.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.server.Addr() != nil {
		return nil
	}
	if err := n.server.Bind(n.opts.ListenAddress); err != nil {
		return fmt.Errorf("failed to bind %s: %w", n.opts.ListenAddress, err)
	}
	return nil
}

func (n *Node) Addr() net.Addr {
	return n.server.Addr()
}

// Run blocks until ctx is cancelled or Shutdown is called, then waits for the
// inbound service, both loops and every in-flight deposit to finish.
func (n *Node) Run(ctx context.Context) error {
	if n.State() != StateStarting {
		return fmt.Errorf("node already %s", n.State())
	}
	if err := n.Listen(); err != nil {
		n.setState(StateStopped)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()
	defer cancel()

	n.restore(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(n.server.Serve)
	g.Go(func() error {
		n.pollLoop(gctx)
		return nil
	})
	g.Go(func() error {
		n.heartbeatLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		n.setState(StateShuttingDown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return n.server.Shutdown(shutdownCtx)
	})
	n.setState(StateRunning)
	n.logger.WithField("addr", n.Addr()).Info("validator running")

	err := g.Wait()
	n.deposits.Wait()
	n.setState(StateStopped)
	return err
}

// Shutdown asks a running node to stop. Run returns once everything has exited.
func (n *Node) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(n.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		n.heartbeat(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Node) heartbeat(ctx context.Context) {
	_, result, err := n.deps.Transport.Publish(ctx, network.MessageHeartbeat, network.HeartbeatPayload{
		Status:  n.State().String(),
		Address: n.opts.EthereumAddress,
	})
	if err != nil {
		n.logger.WithError(err).Warn("failed to publish heartbeat")
		return
	}
	n.logger.WithFields(logrus.Fields{
		"sent":       result.Sent,
		"failed":     result.Failed,
		"live_peers": n.deps.Transport.LivePeers(),
	}).Debug("heartbeat published")
}

func (n *Node) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		n.dispatchPending(ctx)
		n.expireSigned(ctx)
	}
}

// dispatchPending starts one goroutine per queued claim that is not already being
// processed.
func (n *Node) dispatchPending(ctx context.Context) {
	pending := n.queue.Pending()
	n.deps.Metrics.PendingClaims.Set(float64(len(pending)))
	for _, claim := range pending {
		key := claim.OperationHashHex()
		if !n.claimInflight(key) {
			continue
		}
		n.deposits.Add(1)
		go func() {
			defer n.deposits.Done()
			defer n.releaseInflight(key)
			n.process(ctx, claim)
		}()
	}
}

func (n *Node) claimInflight(key string) bool {
	n.inflightMu.Lock()
	defer n.inflightMu.Unlock()
	if _, ok := n.inflight[key]; ok {
		return false
	}
	n.inflight[key] = struct{}{}
	return true
}

func (n *Node) releaseInflight(key string) {
	n.inflightMu.Lock()
	defer n.inflightMu.Unlock()
	delete(n.inflight, key)
}

// restore requeues pending claims and fails rounds interrupted by a restart.
func (n *Node) restore(ctx context.Context) {
	records, err := n.deps.Ledger.List(ctx, ledger.StatusPending, ledger.StatusSigning)
	if err != nil {
		n.logger.WithError(err).Error("failed to read ledger")
		return
	}
	for _, rec := range records {
		if rec.Status == ledger.StatusSigning {
			n.fail(ctx, rec.OperationHash, ledger.StatusSigning, "signing interrupted by restart")
			continue
		}
		n.queue.Add(claimFromRecord(&rec))
	}
	if len(records) > 0 {
		n.logger.WithField("records", len(records)).Info("restored ledger")
	}
}
