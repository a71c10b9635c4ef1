// Package relay implements cross-tab presence and mutation notification.
//
// Every handle joined to a channel heartbeats on a fixed interval. Peers hold
// a soft lease in the receiver's presence table and drop out once they have
// not been heard from for the staleness window; nothing ever announces a
// departure. Handles also relay "something changed" notices so sibling
// clients can refetch without a server round-trip.
package relay

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iggydv12/tabsync/internal/observe"
	"github.com/iggydv12/tabsync/internal/presence"
	"github.com/iggydv12/tabsync/internal/transport"
)

const (
	// DefaultHeartbeatInterval is how often a live handle announces itself.
	DefaultHeartbeatInterval = 2 * time.Second
	// DefaultStaleAfter is how long a peer's lease lasts without a heartbeat.
	DefaultStaleAfter = presence.DefaultStaleAfter

	channelPrefix = "todo-tabs-"
	inboxSize     = 256
	outboxSize    = 64
)

// ChannelName returns the bus channel used for the logical channel name.
func ChannelName(channel string) string { return channelPrefix + channel }

// Handle is one peer's membership in a relay channel.
type Handle interface {
	// PeerID is generated once per handle.
	PeerID() string
	// Channel is the logical channel name passed to Open.
	Channel() string
	// Connected is false for the inert handle returned when no transport is available.
	Connected() bool
	// PeerCount is live peers plus one for this handle.
	PeerCount() *observe.Value[int]
	// LastMutation is the latest notice from another peer, nil until one arrives.
	LastMutation() *observe.Value[*Mutation]
	// Peers returns the current presence table.
	Peers() map[string]time.Time
	// BroadcastMutation notifies the other peers. Fire-and-forget.
	BroadcastMutation(action string)
	// Close stops heartbeating and leaves the channel. Idempotent.
	Close() error
}

// Options tune a handle. Zero values take the defaults.
type Options struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	Codec             Codec
	Clock             clock.Clock
	Logger            *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Codec == nil {
		o.Codec = JSON
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Open joins channel on bus. When bus is nil or cannot join, Open returns an
// inert NullHandle instead of failing; the choice is made once, here.
func Open(bus transport.Bus, channel string, opts Options) Handle {
	opts = opts.withDefaults()
	logger := opts.Logger.With(zap.String("channel", channel))

	if bus == nil {
		logger.Info("No relay transport available, running single-peer")
		return NewNullHandle(channel)
	}

	h, err := newLiveHandle(bus, channel, opts, logger)
	if err != nil {
		logger.Warn("Relay join failed, running single-peer", zap.Error(err))
		return NewNullHandle(channel)
	}
	h.start()
	return h
}

// NullHandle is the single-peer stand-in used when no transport exists.
type NullHandle struct {
	id           string
	channel      string
	peerCount    *observe.Value[int]
	lastMutation *observe.Value[*Mutation]
}

// NewNullHandle creates a NullHandle.
func NewNullHandle(channel string) *NullHandle {
	return &NullHandle{
		id:           uuid.NewString(),
		channel:      channel,
		peerCount:    observe.NewValue(1, observe.Equal[int]),
		lastMutation: observe.NewValue[*Mutation](nil, nil),
	}
}

func (n *NullHandle) PeerID() string                          { return n.id }
func (n *NullHandle) Channel() string                         { return n.channel }
func (n *NullHandle) Connected() bool                         { return false }
func (n *NullHandle) PeerCount() *observe.Value[int]          { return n.peerCount }
func (n *NullHandle) LastMutation() *observe.Value[*Mutation] { return n.lastMutation }
func (n *NullHandle) Peers() map[string]time.Time             { return map[string]time.Time{} }
func (n *NullHandle) BroadcastMutation(string)                {}
func (n *NullHandle) Close() error                            { return nil }
