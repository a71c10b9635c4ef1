package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const mdnsServiceTag = "tabsync-relay"

// LibP2POptions configures a LibP2PBus.
type LibP2POptions struct {
	// ListenAddrs defaults to a random TCP port on all interfaces.
	ListenAddrs []string
	// DisableMDNS turns off LAN discovery; peers must then be connected with Connect.
	DisableMDNS bool
}

// LibP2PBus scopes channels to a LAN mesh: hosts find each other over mDNS and
// exchange messages on GossipSub topics. A Bus holds one topic per channel
// name shared by every local subscription; GossipSub hands a local publish to
// all of them, so payloads carry the sending channel's id in an envelope.
type LibP2PBus struct {
	host   host.Host
	ps     *pubsub.PubSub
	mdns   mdns.Service
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[string]*topicRef
	closed bool
}

type topicRef struct {
	topic *pubsub.Topic
	refs  int
}

// NewLibP2PBus creates the libp2p host, starts mDNS discovery and GossipSub.
func NewLibP2PBus(opts LibP2POptions, logger *zap.Logger) (*LibP2PBus, error) {
	listen := opts.ListenAddrs
	if len(listen) == 0 {
		listen = []string{"/ip4/0.0.0.0/tcp/0"}
	}
	h, err := libp2p.New(libp2p.ListenAddrStrings(listen...))
	if err != nil {
		return nil, fmt.Errorf("libp2p host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("gossipsub: %w", err)
	}

	b := &LibP2PBus{
		host:   h,
		ps:     ps,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]*topicRef),
	}

	if !opts.DisableMDNS {
		b.mdns = mdns.NewMdnsService(h, mdnsServiceTag, &mdnsNotifee{bus: b})
		if err := b.mdns.Start(); err != nil {
			logger.Warn("mDNS start failed (LAN discovery disabled)", zap.Error(err))
			b.mdns = nil
		}
	}

	logger.Info("libp2p relay bus started",
		zap.String("peerID", h.ID().String()),
		zap.Strings("addrs", addrsToStrings(h.Addrs())),
	)
	return b, nil
}

// Host returns the underlying libp2p host.
func (b *LibP2PBus) Host() host.Host { return b.host }

// AddrInfo returns the dialable address of this bus.
func (b *LibP2PBus) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: b.host.ID(), Addrs: b.host.Addrs()}
}

// Connect dials another bus directly, retrying briefly.
func (b *LibP2PBus) Connect(ctx context.Context, pi peer.AddrInfo) error {
	return retry.Do(func() error {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return b.host.Connect(cctx, pi)
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Debug("libp2p connect retry", zap.String("peer", pi.ID.String()), zap.Uint("attempt", n), zap.Error(err))
		}),
	)
}

// Join implements Bus.
func (b *LibP2PBus) Join(name string, handler Handler) (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	ref, ok := b.topics[name]
	if !ok {
		topic, err := b.ps.Join(name)
		if err != nil {
			return nil, fmt.Errorf("gossipsub join %s: %w", name, err)
		}
		ref = &topicRef{topic: topic}
		b.topics[name] = ref
	}
	sub, err := ref.topic.Subscribe()
	if err != nil {
		if ref.refs == 0 {
			ref.topic.Close()
			delete(b.topics, name)
		}
		return nil, fmt.Errorf("gossipsub subscribe %s: %w", name, err)
	}
	ref.refs++

	ctx, cancel := context.WithCancel(b.ctx)
	ch := &libp2pChannel{
		id:     newSenderID(),
		bus:    b,
		name:   name,
		topic:  ref.topic,
		sub:    sub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go ch.pump(ctx, handler)
	return ch, nil
}

// Close implements Bus.
func (b *LibP2PBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	if b.mdns != nil {
		b.mdns.Close()
	}
	return b.host.Close()
}

func (b *LibP2PBus) release(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref, ok := b.topics[name]
	if !ok {
		return
	}
	ref.refs--
	if ref.refs <= 0 {
		if err := ref.topic.Close(); err != nil {
			b.logger.Debug("gossipsub topic close", zap.String("topic", name), zap.Error(err))
		}
		delete(b.topics, name)
	}
}

type libp2pChannel struct {
	id     string
	bus    *LibP2PBus
	name   string
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (c *libp2pChannel) pump(ctx context.Context, handler Handler) {
	defer close(c.done)
	for {
		msg, err := c.sub.Next(ctx)
		if err != nil {
			return
		}
		env, err := unseal(msg.Data)
		if err != nil {
			c.bus.logger.Debug("Dropping unreadable gossipsub message", zap.String("topic", c.name), zap.Error(err))
			continue
		}
		if env.Sender == c.id {
			continue
		}
		handler(env.Data)
	}
}

func (c *libp2pChannel) Publish(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	sealed, err := seal(c.id, payload)
	if err != nil {
		return fmt.Errorf("gossipsub publish %s: %w", c.name, err)
	}
	ctx, cancel := context.WithTimeout(c.bus.ctx, 5*time.Second)
	defer cancel()
	if err := c.topic.Publish(ctx, sealed); err != nil {
		return fmt.Errorf("gossipsub publish %s: %w", c.name, err)
	}
	return nil
}

func (c *libp2pChannel) Close() error {
	c.once.Do(func() {
		c.sub.Cancel()
		c.cancel()
		<-c.done
		c.bus.release(c.name)
	})
	return nil
}

func addrsToStrings(addrs []multiaddr.Multiaddr) []string {
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return s
}

// mdnsNotifee connects to every relay host found on the LAN.
type mdnsNotifee struct {
	bus *LibP2PBus
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.bus.host.ID() {
		return
	}
	n.bus.logger.Info("mDNS: found peer", zap.String("peerID", pi.ID.String()))
	if err := n.bus.Connect(n.bus.ctx, pi); err != nil {
		n.bus.logger.Warn("mDNS connect failed", zap.String("peer", pi.ID.String()), zap.Error(err))
	}
}
