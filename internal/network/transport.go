package network

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/xmr-bridge/internal/libhttp"
)

const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultBroadcastLimit = 16
)

// Handler is called after a message of a subscribed type has been appended to the log.
type Handler func(ctx context.Context, msg ConsensusMessage)

type Options struct {
	ValidatorID  int
	TotalParties int
	// IdentityKey signs outgoing messages. Nil sends them unsigned. When set, inbound
	// messages are only accepted from peers registered with a public key.
	IdentityKey *ecdsa.PrivateKey
	// RequestTimeout bounds one send attempt to one peer.
	RequestTimeout    time.Duration
	Retry             libhttp.RetryPolicy
	HeartbeatInterval time.Duration
	// BroadcastFailures counts sends that failed after all retries. Optional.
	BroadcastFailures prometheus.Counter
}

// Transport owns the peer table and the message log. Both sit behind one RWMutex:
// writers are serialised and readers run concurrently.
type Transport struct {
	opts   Options
	logger *logrus.Entry
	now    func() time.Time

	mu       sync.RWMutex
	peers    map[int]*peer
	messages []ConsensusMessage
	seen     map[string]struct{}
	handlers map[MessageType][]Handler
}

func NewTransport(opts Options) *Transport {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &Transport{
		opts:     opts,
		logger:   logrus.WithFields(logrus.Fields{"service": "transport", "validator_id": opts.ValidatorID}),
		now:      time.Now,
		peers:    make(map[int]*peer),
		seen:     make(map[string]struct{}),
		handlers: make(map[MessageType][]Handler),
	}
}

func (t *Transport) ValidatorID() int {
	return t.opts.ValidatorID
}

// RegisterPeer inserts or updates a peer. Liveness is kept across updates.
func (t *Transport) RegisterPeer(id int, url string, publicKey []byte) error {
	if err := t.checkValidator(id); err != nil {
		return err
	}
	url = strings.TrimRight(url, "/")

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.url = url
		if publicKey != nil {
			p.publicKey = publicKey
		}
		return nil
	}
	t.peers[id] = &peer{id: id, url: url, publicKey: publicKey}
	return nil
}

func (t *Transport) checkValidator(id int) error {
	if t.opts.TotalParties > 0 && (id < 0 || id >= t.opts.TotalParties) {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, id)
	}
	return nil
}

// Peers returns the peer table ordered by validator id.
func (t *Transport) Peers() []PeerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	out := make([]PeerStatus, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, PeerStatus{
			ID:       p.id,
			URL:      p.url,
			Alive:    t.alive(p, now),
			LastSeen: p.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// alive: a peer is stale once it missed two heartbeat intervals. Caller holds mu.
func (t *Transport) alive(p *peer, now time.Time) bool {
	return !p.lastSeen.IsZero() && now.Sub(p.lastSeen) < 2*t.opts.HeartbeatInterval
}

func (t *Transport) LivePeers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	n := 0
	for _, p := range t.peers {
		if p.id != t.opts.ValidatorID && t.alive(p, now) {
			n++
		}
	}
	return n
}

// Subscribe registers a handler for one message type.
func (t *Transport) Subscribe(msgType MessageType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[msgType] = append(t.handlers[msgType], h)
}

// NewMessage builds and signs a message from this validator.
func (t *Transport) NewMessage(msgType MessageType, payload any) (ConsensusMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ConsensusMessage{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	msg := ConsensusMessage{
		ID:          uuid.New().String(),
		ValidatorID: t.opts.ValidatorID,
		Type:        msgType,
		Data:        data,
		Timestamp:   t.now().Unix(),
	}
	if t.opts.IdentityKey != nil {
		if err := msg.Sign(t.opts.IdentityKey); err != nil {
			return ConsensusMessage{}, err
		}
	}
	return msg, nil
}

// Publish appends a new message to the local log and broadcasts it to every peer.
// It is the only way a message carrying this validator's id enters the log.
func (t *Transport) Publish(ctx context.Context, msgType MessageType, payload any) (ConsensusMessage, BroadcastResult, error) {
	msg, err := t.NewMessage(msgType, payload)
	if err != nil {
		return ConsensusMessage{}, BroadcastResult{}, err
	}
	if err := t.appendMessage(ctx, msg, false); err != nil {
		return ConsensusMessage{}, BroadcastResult{}, err
	}
	return msg, t.Broadcast(ctx, msg), nil
}

// Ingest validates a message received from a peer and appends it to the log in
// receipt order. Messages already in the log are ignored. A message claiming this
// validator's id is rejected. When the sender's public key is known the signature
// must verify, and when this transport signs its own messages every inbound
// message must be signed by a peer with a registered key.
func (t *Transport) Ingest(ctx context.Context, msg ConsensusMessage) error {
	if err := t.checkValidator(msg.ValidatorID); err != nil {
		return err
	}
	if msg.ValidatorID == t.opts.ValidatorID {
		return fmt.Errorf("message %s: %w", msg.ID, ErrOwnMessage)
	}
	return t.appendMessage(ctx, msg, true)
}

func (t *Transport) appendMessage(ctx context.Context, msg ConsensusMessage, inbound bool) error {
	t.mu.Lock()
	if _, dup := t.seen[msg.ID]; dup && msg.ID != "" {
		t.mu.Unlock()
		return nil
	}
	if inbound {
		if err := t.authenticate(msg); err != nil {
			t.mu.Unlock()
			return fmt.Errorf("message %s from validator %d: %w", msg.ID, msg.ValidatorID, err)
		}
	}
	if msg.ID != "" {
		t.seen[msg.ID] = struct{}{}
	}
	t.messages = append(t.messages, msg)
	if p, ok := t.peers[msg.ValidatorID]; ok {
		p.lastSeen = t.now()
	}
	handlers := append([]Handler(nil), t.handlers[msg.Type]...)
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"from":     msg.ValidatorID,
		"msg_type": msg.Type,
		"id":       msg.ID,
	}).Debug("message received")

	for _, h := range handlers {
		h(ctx, msg)
	}
	return nil
}

// authenticate must be called with t.mu held.
func (t *Transport) authenticate(msg ConsensusMessage) error {
	p, ok := t.peers[msg.ValidatorID]
	if ok && len(p.publicKey) > 0 {
		return msg.Verify(p.publicKey)
	}
	if t.opts.IdentityKey != nil {
		return ErrNoPeerKey
	}
	return nil
}

// Broadcast sends msg to every known peer except this validator, concurrently.
// A failed peer is logged and counted; it never stops delivery to the others.
func (t *Transport) Broadcast(ctx context.Context, msg ConsensusMessage) BroadcastResult {
	t.mu.RLock()
	targets := make([]peer, 0, len(t.peers))
	for _, p := range t.peers {
		if p.id != t.opts.ValidatorID {
			targets = append(targets, *p)
		}
	}
	t.mu.RUnlock()

	var (
		mu     sync.Mutex
		result BroadcastResult
		g      errgroup.Group
	)
	g.SetLimit(defaultBroadcastLimit)
	for _, p := range targets {
		g.Go(func() error {
			err := t.send(ctx, p.url, msg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				if t.opts.BroadcastFailures != nil {
					t.opts.BroadcastFailures.Inc()
				}
				t.logger.WithError(err).WithFields(logrus.Fields{
					"peer":     p.id,
					"url":      p.url,
					"msg_type": msg.Type,
				}).Warn("failed to send message to peer")
				return nil
			}
			result.Sent++
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (t *Transport) send(ctx context.Context, url string, msg ConsensusMessage) error {
	ctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout*time.Duration(max(t.opts.Retry.MaxTries, 1)))
	defer cancel()
	_, err := libhttp.CallWithRetry[map[string]any](ctx, t.opts.Retry, http.MethodPost, url+"/message", nil, msg, nil)
	return err
}

// Messages returns the logged messages of one type in receipt order.
func (t *Transport) Messages(msgType MessageType) []ConsensusMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ConsensusMessage
	for _, m := range t.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// AwaitQuorum scans the log once. It returns every message of msgType when there
// are at least required of them, otherwise an *InsufficientQuorumError. Callers poll.
func (t *Transport) AwaitQuorum(msgType MessageType, required int) ([]ConsensusMessage, error) {
	msgs := t.Messages(msgType)
	if len(msgs) < required {
		return nil, &InsufficientQuorumError{Type: msgType, Required: required, Actual: len(msgs)}
	}
	return msgs, nil
}

// QuorumOf is AwaitQuorum restricted to messages accepted by match, counting at
// most one message per validator (the first received).
func (t *Transport) QuorumOf(msgType MessageType, required int, match func(ConsensusMessage) bool) ([]ConsensusMessage, error) {
	seen := make(map[int]bool)
	var out []ConsensusMessage
	for _, m := range t.Messages(msgType) {
		if seen[m.ValidatorID] || (match != nil && !match(m)) {
			continue
		}
		seen[m.ValidatorID] = true
		out = append(out, m)
	}
	if len(out) < required {
		return nil, &InsufficientQuorumError{Type: msgType, Required: required, Actual: len(out)}
	}
	return out, nil
}

// CollectQuorum polls QuorumOf until it succeeds or ctx is done.
func (t *Transport) CollectQuorum(ctx context.Context, msgType MessageType, required int, match func(ConsensusMessage) bool) ([]ConsensusMessage, error) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()
	for {
		msgs, err := t.QuorumOf(msgType, required, match)
		if err == nil {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

// Signup assigns the 1-based party number of a validator.
func (t *Transport) Signup(req PartySignupRequest) (PartySignupResponse, error) {
	if err := t.checkValidator(req.ValidatorID); err != nil {
		return PartySignupResponse{}, err
	}
	resp := PartySignupResponse{Number: req.ValidatorID + 1, Ready: true}
	t.logger.WithFields(logrus.Fields{
		"party":     resp.Number,
		"validator": req.ValidatorID,
		"intent":    req.Intent,
	}).Info("assigned party number")
	return resp, nil
}
