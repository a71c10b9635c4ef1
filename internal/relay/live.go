package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iggydv12/tabsync/internal/observe"
	"github.com/iggydv12/tabsync/internal/presence"
	"github.com/iggydv12/tabsync/internal/transport"
)

// LiveHandle is a Handle backed by a transport channel. A single loop
// goroutine owns the presence table: heartbeats, received messages and
// outgoing mutations are handled one at a time, in arrival order.
type LiveHandle struct {
	id      string
	channel string
	ch      transport.Channel
	table   *presence.Table
	codec   Codec
	clock   clock.Clock
	logger  *zap.Logger

	interval time.Duration
	ticker   *clock.Ticker

	peerCount    *observe.Value[int]
	lastMutation *observe.Value[*Mutation]

	inbox  chan []byte
	outbox chan []byte
	stop   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func newLiveHandle(bus transport.Bus, channel string, opts Options, logger *zap.Logger) (*LiveHandle, error) {
	h := &LiveHandle{
		id:           uuid.NewString(),
		channel:      channel,
		table:        presence.NewTable(opts.StaleAfter),
		codec:        opts.Codec,
		clock:        opts.Clock,
		interval:     opts.HeartbeatInterval,
		peerCount:    observe.NewValue(1, observe.Equal[int]),
		lastMutation: observe.NewValue[*Mutation](nil, nil),
		inbox:        make(chan []byte, inboxSize),
		outbox:       make(chan []byte, outboxSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	h.logger = logger.With(zap.String("peerID", h.id))

	ch, err := bus.Join(ChannelName(channel), h.receive)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", ChannelName(channel), err)
	}
	h.ch = ch
	return h, nil
}

// start sends the initial heartbeat and begins the loop.
func (h *LiveHandle) start() {
	h.ticker = h.clock.Ticker(h.interval)
	h.heartbeat()
	go h.run()
	h.logger.Info("Relay joined",
		zap.Duration("heartbeatInterval", h.interval),
		zap.Duration("staleAfter", h.table.StaleAfter()),
	)
}

func (h *LiveHandle) run() {
	defer close(h.done)
	defer h.ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-h.ticker.C:
			h.heartbeat()
		case payload := <-h.inbox:
			h.handle(payload)
		case payload := <-h.outbox:
			h.publish(payload)
		}
	}
}

// receive is the transport handler. It never blocks: when the inbox is full
// the message is dropped, which the protocol already tolerates.
func (h *LiveHandle) receive(payload []byte) {
	select {
	case h.inbox <- payload:
	default:
		h.logger.Debug("Relay inbox full, dropping message")
	}
}

func (h *LiveHandle) heartbeat() {
	payload, err := h.codec.Marshal(heartbeatMessage(h.id))
	if err != nil {
		h.logger.Error("Heartbeat encode failed", zap.Error(err))
		return
	}
	h.publish(payload)
	h.refresh()
}

// refresh evicts lapsed leases and republishes the peer count.
func (h *LiveHandle) refresh() {
	for _, id := range h.table.Evict(h.clock.Now()) {
		h.logger.Debug("Peer lease lapsed", zap.String("peer", id))
	}
	h.peerCount.Set(h.table.Count() + 1)
}

func (h *LiveHandle) handle(payload []byte) {
	var msg wireMessage
	if err := h.codec.Unmarshal(payload, &msg); err != nil {
		h.logger.Debug("Dropping malformed relay message", zap.Error(err))
		return
	}
	if msg.ID == h.id {
		return // echoed back by the transport
	}

	switch msg.Type {
	case KindHeartbeat:
		if msg.ID == "" {
			return
		}
		if h.table.Touch(msg.ID, h.clock.Now()) {
			h.logger.Debug("Peer joined", zap.String("peer", msg.ID))
		}
		h.refresh()
	case KindMutation:
		mut := msg.toMutation(h.clock.Now())
		h.logger.Debug("Remote mutation", zap.String("peer", mut.PeerID), zap.String("action", mut.Action))
		h.lastMutation.Set(mut)
	default:
		h.logger.Debug("Dropping relay message of unknown type", zap.String("type", msg.Type))
	}
}

func (h *LiveHandle) publish(payload []byte) {
	if err := h.ch.Publish(payload); err != nil {
		h.logger.Warn("Relay publish failed", zap.Error(err))
	}
}

// PeerID implements Handle.
func (h *LiveHandle) PeerID() string { return h.id }

// Channel implements Handle.
func (h *LiveHandle) Channel() string { return h.channel }

// Connected implements Handle.
func (h *LiveHandle) Connected() bool { return true }

// PeerCount implements Handle.
func (h *LiveHandle) PeerCount() *observe.Value[int] { return h.peerCount }

// LastMutation implements Handle.
func (h *LiveHandle) LastMutation() *observe.Value[*Mutation] { return h.lastMutation }

// Peers implements Handle.
func (h *LiveHandle) Peers() map[string]time.Time { return h.table.Snapshot() }

// BroadcastMutation implements Handle. The message is stamped with the
// current time and queued for the loop; it is dropped after Close.
func (h *LiveHandle) BroadcastMutation(action string) {
	payload, err := h.codec.Marshal(mutationMessage(h.id, action, h.clock.Now()))
	if err != nil {
		h.logger.Error("Mutation encode failed", zap.Error(err))
		return
	}
	select {
	case <-h.stop:
		return
	default:
	}
	select {
	case h.outbox <- payload:
	case <-h.stop:
	default:
		h.logger.Warn("Relay outbox full, dropping mutation", zap.String("action", action))
	}
}

// Close implements Handle. It waits for the loop to exit before leaving the
// channel, so no heartbeat is sent afterwards.
func (h *LiveHandle) Close() error {
	h.closeOnce.Do(func() {
		close(h.stop)
		<-h.done
		h.closeErr = h.ch.Close()
		h.logger.Info("Relay left")
	})
	return h.closeErr
}
