package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus scopes channels to a Redis server using PUBLISH/SUBSCRIBE.
// Redis echoes a publisher's own messages to every subscription, so payloads
// travel in an envelope naming the sending channel.
type RedisBus struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu       sync.Mutex
	channels map[*redisChannel]struct{}
	closed   bool
}

// NewRedisBus connects to addr and verifies the connection, retrying briefly.
func NewRedisBus(ctx context.Context, addr string, logger *zap.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	err := retry.Do(func() error {
		return rdb.Ping(ctx).Err()
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Redis ping retry", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connect %s: %w", addr, err)
	}
	logger.Info("Connected to Redis", zap.String("addr", addr))
	return NewRedisBusFromClient(rdb, logger), nil
}

// NewRedisBusFromClient wraps an existing client. The bus owns it afterwards.
func NewRedisBusFromClient(rdb *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		rdb:      rdb,
		logger:   logger,
		channels: make(map[*redisChannel]struct{}),
	}
}

// Join implements Bus. It returns once the subscription is confirmed.
func (b *RedisBus) Join(name string, handler Handler) (Channel, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.rdb.Subscribe(ctx, name)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", name, err)
	}

	ch := &redisChannel{
		id:     newSenderID(),
		bus:    b,
		name:   name,
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go ch.pump(pubsub.Channel(), handler)

	b.mu.Lock()
	b.channels[ch] = struct{}{}
	b.mu.Unlock()
	return ch, nil
}

// Close implements Bus.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	channels := make([]*redisChannel, 0, len(b.channels))
	for ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	return b.rdb.Close()
}

type redisChannel struct {
	id     string
	bus    *RedisBus
	name   string
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func (c *redisChannel) pump(msgs <-chan *redis.Message, handler Handler) {
	defer close(c.done)
	for msg := range msgs {
		env, err := unseal([]byte(msg.Payload))
		if err != nil {
			c.bus.logger.Debug("Dropping unreadable redis message", zap.String("channel", c.name), zap.Error(err))
			continue
		}
		if env.Sender == c.id {
			continue
		}
		handler(env.Data)
	}
}

func (c *redisChannel) Publish(payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	sealed, err := seal(c.id, payload)
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", c.name, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.bus.rdb.Publish(ctx, c.name, sealed).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", c.name, err)
	}
	return nil
}

func (c *redisChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		c.cancel()
		err = c.pubsub.Close()
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			c.bus.logger.Warn("Redis subscription did not drain", zap.String("channel", c.name))
		}

		c.bus.mu.Lock()
		delete(c.bus.channels, c)
		c.bus.mu.Unlock()
	})
	return err
}
